package export

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const tokenPrefix = "op_"

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

var (
	timeNow = func() time.Time { return time.Now().UTC() }

	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(randReader{}, 0)
)

// newToken returns a correlation token for one export operation.
func newToken() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(timeNow()), entropy)
	if err != nil {
		return "", fmt.Errorf("new token: %w", err)
	}
	return tokenPrefix + id.String(), nil
}

func validToken(tok string) bool {
	return strings.HasPrefix(tok, tokenPrefix) && len(tok) > len(tokenPrefix)
}
