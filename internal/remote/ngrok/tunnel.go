package ngrok

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	ngrok "golang.ngrok.com/ngrok"
	"golang.ngrok.com/ngrok/config"

	rbconfig "github.com/vietdungdev/raidbot/internal/config"
)

type Options struct {
	LocalAddr     string
	Authtoken     string
	Region        string
	Domain        string
	BasicAuthUser string
	BasicAuthPass string
}

// OptionsFromConfig points the tunnel at the local status server.
func OptionsFromConfig(cfg *rbconfig.RaidbotCfg) Options {
	return Options{
		LocalAddr:     fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		Authtoken:     cfg.Ngrok.Authtoken,
		Region:        cfg.Ngrok.Region,
		Domain:        cfg.Ngrok.Domain,
		BasicAuthUser: cfg.Ngrok.BasicAuthUser,
		BasicAuthPass: cfg.Ngrok.BasicAuthPass,
	}
}

func (o Options) backend() (*url.URL, error) {
	if o.LocalAddr == "" {
		return nil, errors.New("ngrok local address is required")
	}
	u, err := url.Parse(o.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("ngrok local address: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ngrok local address %q must be an absolute URL", o.LocalAddr)
	}
	return u, nil
}

func (o Options) endpointOptions() []config.HTTPEndpointOption {
	opts := make([]config.HTTPEndpointOption, 0, 2)
	if o.Domain != "" {
		opts = append(opts, config.WithDomain(o.Domain))
	}
	// Basic auth applies only when both parts are set.
	if o.BasicAuthUser != "" && o.BasicAuthPass != "" {
		opts = append(opts, config.WithBasicAuth(o.BasicAuthUser, o.BasicAuthPass))
	}
	return opts
}

func (o Options) connectOptions() []ngrok.ConnectOption {
	opts := make([]ngrok.ConnectOption, 0, 2)
	if o.Authtoken != "" {
		opts = append(opts, ngrok.WithAuthtoken(o.Authtoken))
	} else if os.Getenv("NGROK_AUTHTOKEN") != "" {
		opts = append(opts, ngrok.WithAuthtokenFromEnv())
	}
	if o.Region != "" {
		opts = append(opts, ngrok.WithRegion(o.Region))
	}
	return opts
}

type Tunnel struct {
	forwarder ngrok.Forwarder
}

func Start(ctx context.Context, opts Options) (*Tunnel, error) {
	backend, err := opts.backend()
	if err != nil {
		return nil, err
	}

	fwd, err := ngrok.ListenAndForward(ctx, backend, config.HTTPEndpoint(opts.endpointOptions()...), opts.connectOptions()...)
	if err != nil {
		return nil, fmt.Errorf("ngrok forward to %s: %w", backend.Host, err)
	}

	return &Tunnel{forwarder: fwd}, nil
}

func (t *Tunnel) URL() string {
	if t == nil || t.forwarder == nil {
		return ""
	}
	return t.forwarder.URL()
}

func (t *Tunnel) Close() error {
	if t == nil || t.forwarder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.forwarder.CloseWithContext(ctx)
}
