package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Static is a no-network gateway for local runs. Its webhooks are signed by hand with Sign.
type Static struct {
	name string
	key  string
}

func NewStatic(name, key string) *Static {
	return &Static{name: name, key: key}
}

func (s *Static) Name() string { return s.name }

func (s *Static) OpenSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "order_local_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return &Session{Gateway: s.name, RemoteOrderID: id, Key: s.key}, nil
}
