package configuration

import (
	"fmt"
	"sync"

	"github.com/contractkit/pactmock/internal/app/pactmock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ManagedServer is one running mock server tracked by the registry.
type ManagedServer struct {
	ID     string
	Server *pactmock.MockServer
}

var servers sync.Map

// StartMockServer starts a mock server for the pact and registers it under a
// generated identifier.
func StartMockServer(pact *pactmock.Pact, addr string, config *pactmock.TransportConfig) (*ManagedServer, error) {
	server, err := pactmock.StartMockServer(pact, addr, config)
	if err != nil {
		return nil, err
	}

	managed := &ManagedServer{
		ID:     uuid.NewString(),
		Server: server,
	}
	servers.Store(managed.ID, managed)
	log.Infof("registered mock server %s on %s", managed.ID, server.Addr())
	return managed, nil
}

// LoadServer resolves a registered server by identifier.
func LoadServer(id string) (*ManagedServer, bool) {
	v, ok := servers.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*ManagedServer), true
}

// Servers returns all registered servers.
func Servers() []*ManagedServer {
	var out []*ManagedServer
	servers.Range(func(_, v interface{}) bool {
		out = append(out, v.(*ManagedServer))
		return true
	})
	return out
}

// ShutdownServer cleans up and deregisters one server.
func ShutdownServer(id string) error {
	v, ok := servers.LoadAndDelete(id)
	if !ok {
		return fmt.Errorf("unknown mock server %q", id)
	}
	return v.(*ManagedServer).Server.Cleanup()
}

// ShutdownAllServers cleans up every registered server.
func ShutdownAllServers() {
	servers.Range(func(key, _ interface{}) bool {
		v, ok := servers.LoadAndDelete(key)
		if ok {
			if err := v.(*ManagedServer).Server.Cleanup(); err != nil {
				log.Error(err)
			}
		}
		return true
	})
}
