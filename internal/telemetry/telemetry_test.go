package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), Options{ServiceName: "clinicq"}, zerolog.Nop())
	assert.NoError(t, shutdown(context.Background()))
}
