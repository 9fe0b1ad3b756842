package fsbridge

import (
	"context"
	"encoding/json"
	"io/fs"

	"go.uber.org/zap"

	"toolhub/internal/domain"
	"toolhub/internal/telemetry"
	"toolhub/internal/transport"
)

// RemoteCaller is the slice of a provider connection the adapter needs.
// transport.Conn satisfies it.
type RemoteCaller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

type readTextFileParams struct {
	Path string `json:"path"`
}

type readTextFileResult struct {
	Content string `json:"content"`
}

type writeTextFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Adapter routes each operation to the remote peer when its handshake
// declared the capability, and to the fallback otherwise. The capability
// set is fixed at construction, matching its per-connection immutability.
type Adapter struct {
	remote   RemoteCaller
	caps     domain.CapabilitySet
	fallback Service
	logger   *zap.Logger
}

// New builds the gated adapter around one provider connection. A nil remote
// behaves as a provider with no capabilities.
func New(remote RemoteCaller, caps domain.CapabilitySet, fallback Service, logger *zap.Logger) *Adapter {
	if fallback == nil {
		fallback = NewLocal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		remote:   remote,
		caps:     caps,
		fallback: fallback,
		logger:   logger,
	}
}

func (a *Adapter) ReadTextFile(ctx context.Context, path string) (string, error) {
	if a.remote == nil || !a.caps.ReadTextFile {
		a.logger.Debug("read_text_file served locally",
			telemetry.EventField(telemetry.EventFallbackLocal),
			zap.String("path", path))
		return a.fallback.ReadTextFile(ctx, path)
	}

	raw, err := a.remote.Call(ctx, "fs/read_text_file", readTextFileParams{Path: path})
	if err != nil {
		return "", a.translateProtocolError(err, "read", path)
	}
	var result readTextFileResult
	if err := transport.DecodeResult(raw, &result); err != nil {
		return "", err
	}
	return result.Content, nil
}

func (a *Adapter) WriteTextFile(ctx context.Context, path, content string) error {
	if a.remote == nil || !a.caps.WriteTextFile {
		a.logger.Debug("write_text_file served locally",
			telemetry.EventField(telemetry.EventFallbackLocal),
			zap.String("path", path))
		return a.fallback.WriteTextFile(ctx, path, content)
	}

	_, err := a.remote.Call(ctx, "fs/write_text_file", writeTextFileParams{Path: path, Content: content})
	if err != nil {
		return a.translateProtocolError(err, "write", path)
	}
	return nil
}

// FindFiles has no remote equivalent in the protocol; it is always local.
func (a *Adapter) FindFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	return a.fallback.FindFiles(ctx, dir, pattern)
}

// translateProtocolError maps the recognized subset of peer error codes
// onto the fallback's native error shapes. Resource-not-found becomes the
// same *fs.PathError a local miss would produce, carrying the requested
// path; everything else passes through with code and message intact.
func (a *Adapter) translateProtocolError(err error, op, path string) error {
	perr, ok := domain.AsProtocolError(err)
	if !ok {
		return err
	}
	if perr.Code == domain.CodeResourceNotFound {
		a.logger.Debug("remote not-found translated",
			telemetry.EventField(telemetry.EventRemoteTranslation),
			zap.String("path", path))
		return &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
	}
	return err
}

var _ Service = (*Adapter)(nil)
