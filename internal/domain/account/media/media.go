package media

import "context"

// Host stores a local file somewhere publicly reachable and returns its URL.
// The local file is consumed: implementations remove it once the upload attempt is over.
type Host interface {
	Upload(ctx context.Context, localPath string) (string, error)
}
