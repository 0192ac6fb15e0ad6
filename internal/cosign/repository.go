package cosign

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kollektive-hackathon/multichain/internal/pkg/model"
	"github.com/kollektive-hackathon/multichain/internal/pkg/utils"
)

// errStaleProposal means another request stored the proposal after it was read.
var errStaleProposal = errors.New("proposal was changed by another request")

type proposalRepository interface {
	Create(ctx context.Context, p *model.Proposal) error
	Find(ctx context.Context, id string) (*model.Proposal, error)
	FindByCreator(ctx context.Context, createdBy string, page utils.PageRequest) ([]model.Proposal, int64, error)
	// Update saves the proposal and records newly accepted signatures in one
	// database transaction. It fails with errStaleProposal unless the stored
	// version is still p.Version, and bumps p.Version on success.
	Update(ctx context.Context, p *model.Proposal, added []model.ProposalSignature) error
}

type gormProposals struct {
	db *gorm.DB
}

func (r *gormProposals) Create(ctx context.Context, p *model.Proposal) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *gormProposals) Find(ctx context.Context, id string) (*model.Proposal, error) {
	var p model.Proposal
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&p)
	if result.Error != nil {
		return nil, result.Error
	}
	return &p, nil
}

func (r *gormProposals) FindByCreator(ctx context.Context, createdBy string, page utils.PageRequest) ([]model.Proposal, int64, error) {
	var total int64
	result := r.db.WithContext(ctx).
		Model(&model.Proposal{}).
		Where("created_by = ?", createdBy).
		Count(&total)
	if result.Error != nil {
		return nil, 0, result.Error
	}

	var proposals []model.Proposal
	result = r.db.WithContext(ctx).
		Where("created_by = ?", createdBy).
		Order("time_created DESC").
		Limit(page.Size).
		Offset(page.Offset).
		Find(&proposals)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return proposals, total, nil
}

func (r *gormProposals) Update(ctx context.Context, p *model.Proposal, added []model.ProposalSignature) error {
	expected := p.Version
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p.Version = expected + 1
		result := tx.Model(&model.Proposal{}).
			Where("id = ? AND version = ?", p.Id, expected).
			Select("*").
			Updates(p)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errStaleProposal
		}
		if len(added) == 0 {
			return nil
		}
		return tx.Create(&added).Error
	})
	if err != nil {
		p.Version = expected
	}
	return err
}
