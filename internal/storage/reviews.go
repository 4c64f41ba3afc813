package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Review struct {
	ID       int64
	MemberID string
	Anonym   bool
	Subject  string
	Tier     int
	Text     string
	Date     time.Time
}

// ReviewSummary is a review with its relevance tally.
type ReviewSummary struct {
	Review
	Upvotes   int
	Downvotes int
}

func (r ReviewSummary) Score() int {
	return r.Upvotes - r.Downvotes
}

func (s *Store) UpsertSubject(ctx context.Context, shortcut string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO bot_subjects (shortcut) VALUES (?)
		ON CONFLICT(shortcut) DO NOTHING
	`), shortcut)
	return err
}

// AddOrUpdateReview stores the member's review of a subject, replacing an
// earlier review by the same member.
func (s *Store) AddOrUpdateReview(ctx context.Context, review Review) (int64, error) {
	if review.MemberID == "" || review.Subject == "" {
		return 0, errors.New("review needs member and subject")
	}
	if review.Date.IsZero() {
		review.Date = time.Now()
	}

	var text sql.NullString
	if review.Text != "" {
		text = sql.NullString{String: review.Text, Valid: true}
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO bot_review (member_id, anonym, subject, tier, text_review, review_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, subject) DO UPDATE SET
			anonym = excluded.anonym,
			tier = excluded.tier,
			text_review = excluded.text_review,
			review_date = excluded.review_date
		RETURNING id
	`), review.MemberID, review.Anonym, review.Subject, review.Tier, text, review.Date.Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save review: %w", err)
	}
	return id, nil
}

func (s *Store) GetReview(ctx context.Context, id int64) (Review, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, member_id, anonym, subject, tier, COALESCE(text_review, ''), review_date
		FROM bot_review WHERE id = ?
	`), id)

	var review Review
	var date int64
	if err := row.Scan(&review.ID, &review.MemberID, &review.Anonym, &review.Subject, &review.Tier, &review.Text, &date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Review{}, ErrNotFound
		}
		return Review{}, err
	}
	review.Date = time.Unix(date, 0)
	return review, nil
}

func (s *Store) DeleteReview(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM bot_review WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReviews returns reviews of subject ordered by relevance score, newest
// first among equal scores.
func (s *Store) ListReviews(ctx context.Context, subject string, limit int) ([]ReviewSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, member_id, anonym, subject, tier, text_review, review_date, upvotes, downvotes
		FROM (
			SELECT r.id, r.member_id, r.anonym, r.subject, r.tier,
				COALESCE(r.text_review, '') AS text_review, r.review_date,
				COALESCE(SUM(CASE WHEN v.review IS NULL THEN 0 WHEN v.vote THEN 1 ELSE 0 END), 0) AS upvotes,
				COALESCE(SUM(CASE WHEN v.review IS NULL THEN 0 WHEN v.vote THEN 0 ELSE 1 END), 0) AS downvotes
			FROM bot_review r
			LEFT JOIN bot_review_relevance v ON v.review = r.id
			WHERE r.subject = ?
			GROUP BY r.id, r.member_id, r.anonym, r.subject, r.tier, r.text_review, r.review_date
		) tallied
		ORDER BY upvotes - downvotes DESC, id DESC
		LIMIT ?
	`), subject, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []ReviewSummary
	for rows.Next() {
		var summary ReviewSummary
		var date int64
		if err := rows.Scan(
			&summary.ID,
			&summary.MemberID,
			&summary.Anonym,
			&summary.Subject,
			&summary.Tier,
			&summary.Text,
			&date,
			&summary.Upvotes,
			&summary.Downvotes,
		); err != nil {
			return nil, err
		}
		summary.Date = time.Unix(date, 0)
		reviews = append(reviews, summary)
	}
	return reviews, rows.Err()
}

func (s *Store) VoteRelevance(ctx context.Context, reviewID int64, memberID string, vote bool) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO bot_review_relevance (review, member_id, vote) VALUES (?, ?, ?)
		ON CONFLICT(review, member_id) DO UPDATE SET vote = excluded.vote
	`), reviewID, memberID, vote)
	return err
}

func (s *Store) RemoveVote(ctx context.Context, reviewID int64, memberID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM bot_review_relevance WHERE review = ? AND member_id = ?
	`), reviewID, memberID)
	return err
}
