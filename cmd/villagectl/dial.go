package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/and161185/villagekeeper/internal/chain"
	"github.com/and161185/villagekeeper/internal/client"
	"github.com/and161185/villagekeeper/internal/config"
	"github.com/and161185/villagekeeper/internal/indexer"
	"github.com/and161185/villagekeeper/internal/indexer/grpcindexer"
	"github.com/and161185/villagekeeper/internal/indexer/wsindexer"
)

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dialOptions(cfg config.Client, bearer string) ([]grpc.DialOption, error) {
	var opts []grpc.DialOption
	if cfg.Plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		creds, err := loadTLS(cfg.CACert, cfg.Insecure)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !cfg.Plaintext}))
	}
	return opts, nil
}

// conns holds the connections a command opened.
type conns struct {
	indexer *grpc.ClientConn
	relay   *grpc.ClientConn
}

func (c conns) Close() {
	if c.indexer != nil {
		_ = c.indexer.Close()
	}
	if c.relay != nil {
		_ = c.relay.Close()
	}
}

// open dials the indexer and the relay and wires a client. Pushes go over the WebSocket
// endpoint when one is configured, over the gRPC stream otherwise.
func open(cfg config.Client, sess sessionFile, log *zap.Logger) (*client.Client, conns, error) {
	opts, err := dialOptions(cfg, sess.AccessToken)
	if err != nil {
		return nil, conns{}, err
	}
	var cs conns
	cs.indexer, err = grpc.NewClient(cfg.IndexerAddr, opts...)
	if err != nil {
		return nil, conns{}, err
	}
	cs.relay, err = grpc.NewClient(cfg.RelayAddr, opts...)
	if err != nil {
		cs.Close()
		return nil, conns{}, err
	}

	gi := grpcindexer.New(cs.indexer, log.Named("indexer"))
	var idx indexer.Indexer = gi
	if cfg.WSURL != "" {
		header := http.Header{}
		if sess.AccessToken != "" {
			header.Set("Authorization", "Bearer "+sess.AccessToken)
		}
		idx = indexer.Combine(gi, wsindexer.New(cfg.WSURL, header, log.Named("ws")))
	}

	c := client.New(idx, chain.NewRelay(cs.relay), client.Options{
		Game:           chain.Game{Address: cfg.Game},
		SafetyNet:      safetyNet(cfg),
		RefreshEvery:   cfg.RefreshEvery,
		AttackCooldown: cfg.AttackCooldown,
		Tick:           cfg.Tick,
	}, log)
	return c, cs, nil
}

func safetyNet(cfg config.Client) time.Duration {
	if cfg.SafetyNet <= 0 {
		return -1
	}
	return cfg.SafetyNet
}
