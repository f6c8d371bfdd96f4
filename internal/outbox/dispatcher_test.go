package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, BackoffDelay(0))
	assert.Equal(t, 4*time.Second, BackoffDelay(1))
	assert.Equal(t, 8*time.Second, BackoffDelay(2))
	assert.Equal(t, 64*time.Second, BackoffDelay(5))
}

func TestBackoffDelay_Capped(t *testing.T) {
	assert.Equal(t, maxBackoff, BackoffDelay(10))
	assert.Equal(t, maxBackoff, BackoffDelay(100))
}
