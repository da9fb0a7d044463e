package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/routerdeploy/internal/chain"
	"github.com/ggonzalez94/routerdeploy/internal/chain/signer"
	"github.com/ggonzalez94/routerdeploy/internal/deploy"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/registry"
)

type connectRequest struct {
	Profile      registry.NetworkProfile
	RPCURL       string
	KeySource    string
	PrivateKey   string
	ArtifactsDir string
	Options      chain.Options
}

// connectFn returns a factory bound to one network and signer, the deployer
// address, and a release func.
type connectFn func(ctx context.Context, req connectRequest, logger *slog.Logger) (deploy.ContractFactory, common.Address, func(), error)

type dialFn func(ctx context.Context, rpcURL string) (chain.Backend, func(), error)

func connectChain(ctx context.Context, req connectRequest, logger *slog.Logger) (deploy.ContractFactory, common.Address, func(), error) {
	txSigner, err := signer.NewLocalSignerFromInputs(req.KeySource, req.PrivateKey)
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	backend, release, err := dialChain(ctx, req.RPCURL)
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	if err := expectChainID(ctx, backend, req.Profile.NetworkID); err != nil {
		release()
		return nil, common.Address{}, nil, err
	}
	artifacts := chain.NewArtifactDir(req.ArtifactsDir)
	factory := chain.NewFactory(backend, txSigner, artifacts, req.Options, logger.With("network_id", req.Profile.NetworkID))
	return factory, txSigner.Address(), release, nil
}

func dialChain(ctx context.Context, rpcURL string) (chain.Backend, func(), error) {
	client, err := chain.Dial(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// expectChainID refuses to deploy through an endpoint serving another chain.
func expectChainID(ctx context.Context, backend chain.Backend, networkID int64) error {
	got, err := backend.ChainID(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeNetwork, "read chain id", err)
	}
	if got.Int64() != networkID {
		msg := fmt.Sprintf("rpc endpoint serves chain %d, expected network %d", got.Int64(), networkID)
		if networkID == registry.NetworkLocalFork {
			msg += fmt.Sprintf("; start the local fork with --chain-id %d", registry.NetworkLocalFork)
		}
		return clierr.New(clierr.CodeConfig, msg)
	}
	return nil
}
