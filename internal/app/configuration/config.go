package configuration

import (
	"context"

	"github.com/contractkit/pactmock/internal/app/pactmock"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// NewFromEnv loads the engine configuration from the environment.
func NewFromEnv() (pactmock.Config, error) {
	ctx := context.Background()

	var config pactmock.Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}
