package lifecycle

import (
	"context"
	"fmt"

	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/logger"
	"github.com/ahmadzakiakmal/panelchain/repository"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"golang.org/x/sync/singleflight"
)

// Registration describes the outcome of EnsureRegistered
type Registration struct {
	TxID     string
	Fresh    bool           // Register was called and succeeded
	Observed *ledger.Entity // entity found on the ledger instead
}

// Token describes the outcome of a token sync
type Token struct {
	TokenID string
	TxID    string
	Minted  bool // MintToken was called
	Adopted bool // an existing ledger token was stored locally
}

// Guard makes the first-time ledger actions, registration and minting, run at
// most once per entity. It consults the local record and the ledger before
// every such write; concurrent calls for one entity share a single attempt.
type Guard struct {
	gateway ledger.Gateway
	repo    *repository.Repository
	log     *logger.Logger
	group   singleflight.Group
}

// NewGuard creates a guard over gateway and repo
func NewGuard(gateway ledger.Gateway, repo *repository.Repository, log *logger.Logger) *Guard {
	return &Guard{gateway: gateway, repo: repo, log: log}
}

// EnsureRegistered registers the asset unless the ledger already knows its
// external id.
func (g *Guard) EnsureRegistered(ctx context.Context, asset models.Asset) (Registration, error) {
	v, err, _ := g.group.Do("register/"+asset.ExternalID, func() (interface{}, error) {
		if existing := g.gateway.GetEntity(ctx, asset.ExternalID); existing != nil {
			return Registration{Observed: existing}, nil
		}

		txID, err := g.gateway.Register(ctx, asset.ExternalID, ledger.Attributes{
			Brand:    asset.Brand,
			Model:    asset.ModelName,
			Location: asset.Location,
			Note:     asset.Note,
		})
		if err != nil {
			// Another writer may have registered it after our lookup.
			if existing := g.gateway.GetEntity(ctx, asset.ExternalID); existing != nil {
				g.log.Debug("registration raced, entity now present", "asset_id", asset.ID, "external_id", asset.ExternalID)
				return Registration{Observed: existing}, nil
			}
			return Registration{}, err
		}
		return Registration{TxID: txID, Fresh: true}, nil
	})
	if err != nil {
		return Registration{}, err
	}
	return v.(Registration), nil
}

// EnsurePanelToken gives the asset a ledger token. A token already stored
// locally is returned as is; one found on the ledger is adopted; otherwise a
// new one is minted and stored.
func (g *Guard) EnsurePanelToken(ctx context.Context, assetID, metadataURI, owner string) (Token, error) {
	v, err, _ := g.group.Do("mint/asset/"+assetID, func() (interface{}, error) {
		q := g.repo.Query(ctx)
		asset, err := q.GetAsset(assetID)
		if err != nil {
			return Token{}, err
		}
		if asset.HasToken() {
			return Token{TokenID: *asset.TokenID}, nil
		}

		if entity := g.gateway.GetEntity(ctx, asset.ExternalID); entity.HasToken() {
			if err := q.SetAssetToken(asset.ID, entity.TokenID, ""); err != nil {
				return Token{}, fmt.Errorf("adopting ledger token: %w", err)
			}
			g.log.Info("adopted existing ledger token", "asset_id", asset.ID, "external_id", asset.ExternalID, "token_id", entity.TokenID)
			return Token{TokenID: entity.TokenID, Adopted: true}, nil
		}

		receipt, err := g.gateway.MintToken(ctx, asset.ExternalID, metadataURI, owner)
		if err != nil {
			return Token{}, err
		}
		if err := q.SetAssetToken(asset.ID, receipt.TokenID, receipt.TxID); err != nil {
			return Token{}, fmt.Errorf("storing minted token: %w", err)
		}
		return Token{TokenID: receipt.TokenID, TxID: receipt.TxID, Minted: true}, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// EnsureArtToken does the same for an art piece. The ledger entity is the
// source asset's; its token id is also stored on the asset when the asset
// has none yet.
func (g *Guard) EnsureArtToken(ctx context.Context, artID, metadataURI, owner string) (Token, error) {
	v, err, _ := g.group.Do("mint/art/"+artID, func() (interface{}, error) {
		q := g.repo.Query(ctx)
		piece, err := q.GetArtPiece(artID)
		if err != nil {
			return Token{}, err
		}
		if piece.HasToken() {
			return Token{TokenID: *piece.TokenID}, nil
		}
		asset, err := q.GetAsset(piece.AssetID)
		if err != nil {
			return Token{}, err
		}

		tok := Token{}
		if entity := g.gateway.GetEntity(ctx, asset.ExternalID); entity.HasToken() {
			tok = Token{TokenID: entity.TokenID, Adopted: true}
		} else {
			receipt, err := g.gateway.MintToken(ctx, asset.ExternalID, metadataURI, owner)
			if err != nil {
				return Token{}, err
			}
			tok = Token{TokenID: receipt.TokenID, TxID: receipt.TxID, Minted: true}
		}

		if err := q.SetArtToken(piece.ID, tok.TokenID); err != nil {
			return Token{}, fmt.Errorf("storing art token: %w", err)
		}
		if !asset.HasToken() {
			if err := q.SetAssetToken(asset.ID, tok.TokenID, tok.TxID); err != nil {
				return Token{}, fmt.Errorf("storing art token on asset: %w", err)
			}
		}
		if tok.Adopted {
			g.log.Info("adopted existing ledger token", "art_id", piece.ID, "external_id", asset.ExternalID, "token_id", tok.TokenID)
		}
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}
