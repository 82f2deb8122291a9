package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/peerrank/peerrank/internal/biz"
)

type ratingRepo struct {
	data *Data
	log  *log.Helper
}

// NewRatingRepo creates a new rating repository
func NewRatingRepo(data *Data, logger log.Logger) biz.RatingRepo {
	return &ratingRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *ratingRepo) Upsert(ctx context.Context, targetID, raterID int64, in biz.ScoreInput) (*biz.Rating, bool, error) {
	var out *biz.Rating
	created := false

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Rating
		err := tx.Where("target_user_id = ? AND rater_user_id = ?", targetID, raterID).First(&existing).Error
		switch {
		case err == nil:
			// keep created=false, overwrite below
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
		default:
			return err
		}

		dbRating := &Rating{
			TargetUserID:    targetID,
			RaterUserID:     raterID,
			TrustScore:      in.Trust,
			EngagementScore: in.Engagement,
			ExperienceScore: in.Experience,
			TotalScore:      biz.ComputeTotalScore(in.Trust, in.Engagement, in.Experience),
		}

		// ON CONFLICT keyed on the composite unique index, so a racing
		// first insert degrades to an update instead of failing.
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "target_user_id"}, {Name: "rater_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"trust_score", "engagement_score", "experience_score", "total_score", "updated_at",
			}),
		}).Create(dbRating).Error; err != nil {
			return err
		}

		// Reload for authoritative timestamps regardless of insert/update path.
		var row Rating
		if err := tx.Where("target_user_id = ? AND rater_user_id = ?", targetID, raterID).First(&row).Error; err != nil {
			return err
		}
		out = modelToBiz(&row)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, fmt.Errorf("%w: target=%d rater=%d", biz.ErrDuplicateRating, targetID, raterID)
		}
		return nil, false, fmt.Errorf("failed to upsert rating: %w", err)
	}
	return out, created, nil
}

func (r *ratingRepo) Get(ctx context.Context, targetID, raterID int64) (*biz.Rating, error) {
	var row Rating
	err := r.data.db.WithContext(ctx).
		Where("target_user_id = ? AND rater_user_id = ?", targetID, raterID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, biz.ErrRatingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}
	return modelToBiz(&row), nil
}

func (r *ratingRepo) Update(ctx context.Context, targetID, raterID int64, patch biz.RatingPatch) (*biz.Rating, error) {
	var out *biz.Rating

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Rating
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("target_user_id = ? AND rater_user_id = ?", targetID, raterID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return biz.ErrRatingNotFound
		}
		if err != nil {
			return err
		}

		if patch.Trust != nil {
			row.TrustScore = *patch.Trust
		}
		if patch.Engagement != nil {
			row.EngagementScore = *patch.Engagement
		}
		if patch.Experience != nil {
			row.ExperienceScore = *patch.Experience
		}
		row.TotalScore = biz.ComputeTotalScore(row.TrustScore, row.EngagementScore, row.ExperienceScore)

		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		out = modelToBiz(&row)
		return nil
	})
	if errors.Is(err, biz.ErrRatingNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update rating: %w", err)
	}
	return out, nil
}

func (r *ratingRepo) Delete(ctx context.Context, targetID, raterID int64) error {
	result := r.data.db.WithContext(ctx).
		Where("target_user_id = ? AND rater_user_id = ?", targetID, raterID).
		Delete(&Rating{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete rating: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrRatingNotFound
	}
	return nil
}

func (r *ratingRepo) ListForTarget(ctx context.Context, targetID int64) ([]*biz.Rating, error) {
	return r.list(ctx, "target_user_id = ?", targetID)
}

func (r *ratingRepo) ListByRater(ctx context.Context, raterID int64) ([]*biz.Rating, error) {
	return r.list(ctx, "rater_user_id = ?", raterID)
}

func (r *ratingRepo) list(ctx context.Context, cond string, id int64) ([]*biz.Rating, error) {
	var rows []Rating
	err := r.data.db.WithContext(ctx).
		Where(cond, id).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}

	list := make([]*biz.Rating, 0, len(rows))
	for i := range rows {
		list = append(list, modelToBiz(&rows[i]))
	}
	return list, nil
}

// Helper: Convert data.Rating to biz.Rating
func modelToBiz(row *Rating) *biz.Rating {
	return &biz.Rating{
		TargetUserID:    row.TargetUserID,
		RaterUserID:     row.RaterUserID,
		TrustScore:      row.TrustScore,
		EngagementScore: row.EngagementScore,
		ExperienceScore: row.ExperienceScore,
		TotalScore:      row.TotalScore,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}
