package tes

import (
	"testing"

	"github.com/oakflow-dev/oakflow/backend"
	"github.com/stretchr/testify/assert"
)

func TestIsRemoteURL(t *testing.T) {
	assert.True(t, isRemoteURL("s3://bucket/key"))
	assert.True(t, isRemoteURL("gs://bucket/key"))
	assert.True(t, isRemoteURL("az://container/key"))
	assert.False(t, isRemoteURL("/local/path"))
}

func TestPreemptibleBudgetDefaultsToZero(t *testing.T) {
	assert.Equal(t, 0, preemptibleBudget(backend.Request{Env: map[string]string{}}))
}

func TestPreemptibleBudgetParsesEnv(t *testing.T) {
	req := backend.Request{Env: map[string]string{"OAKFLOW_PREEMPTIBLE_RETRIES": "3"}}
	assert.Equal(t, 3, preemptibleBudget(req))
}
