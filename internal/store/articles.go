package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/articast/articast/internal/core"
)

// articleColumns is the default projection. The body fields (html, ssml,
// body_text) can run to hundreds of kilobytes, so they are only selected
// by FindByIDWithBody.
const articleColumns = `id, url, canonical_url, status, title, description,
	source_name, author_name, image_url, language_code, reading_time,
	compatibility_message, crawl_attempts, created_at, updated_at`

const articleColumnsWithBody = articleColumns + `, html, ssml, body_text`

type articleRepository struct {
	db *sql.DB
}

func (r *articleRepository) FindByID(ctx context.Context, id string) (*core.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)

	return scanArticle(row, false)
}

func (r *articleRepository) FindByIDWithBody(ctx context.Context, id string) (*core.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumnsWithBody+` FROM articles WHERE id = ?`, id)

	return scanArticle(row, true)
}

func (r *articleRepository) FindByCanonicalURL(ctx context.Context, canonicalURL string) (*core.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE canonical_url = ?`, canonicalURL)

	return scanArticle(row, false)
}

func (r *articleRepository) Save(ctx context.Context, article *core.Article) error {
	now := time.Now().UTC()
	article.CreatedAt = now
	article.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, url, canonical_url, status, title, description,
			source_name, author_name, image_url, language_code, reading_time,
			html, ssml, body_text, compatibility_message, crawl_attempts,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.ID, article.URL, article.CanonicalURL, article.Status,
		article.Title, article.Description, article.SourceName,
		article.AuthorName, article.ImageURL, article.LanguageCode,
		article.ReadingTime, article.HTML, article.SSML, article.Text,
		article.CompatibilityMessage, article.CrawlAttempts,
		article.CreatedAt, article.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "canonical_url") {
			return fmt.Errorf("article %s: %w", article.ID, core.ErrCanonicalURLExists)
		}

		if isUniqueViolation(err, "articles.url") {
			return fmt.Errorf("article %s: %w", article.ID, core.ErrArticleURLExists)
		}

		return fmt.Errorf("failed to save article %s: %w", article.ID, err)
	}

	return nil
}

func (r *articleRepository) Update(ctx context.Context, article *core.Article) error {
	article.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET url = ?, canonical_url = ?, status = ?, title = ?,
			description = ?, source_name = ?, author_name = ?, image_url = ?,
			language_code = ?, reading_time = ?, html = ?, ssml = ?,
			body_text = ?, compatibility_message = ?, updated_at = ?
		WHERE id = ?`,
		article.URL, article.CanonicalURL, article.Status, article.Title,
		article.Description, article.SourceName, article.AuthorName,
		article.ImageURL, article.LanguageCode, article.ReadingTime,
		article.HTML, article.SSML, article.Text,
		article.CompatibilityMessage, article.UpdatedAt, article.ID)
	if err != nil {
		if isUniqueViolation(err, "canonical_url") {
			return fmt.Errorf("article %s: %w", article.ID, core.ErrCanonicalURLExists)
		}

		if isUniqueViolation(err, "articles.url") {
			return fmt.Errorf("article %s: %w", article.ID, core.ErrArticleURLExists)
		}

		return fmt.Errorf("failed to update article %s: %w", article.ID, err)
	}

	return requireRowAffected(result, article.ID)
}

func (r *articleRepository) UpdateStatus(ctx context.Context, id string, status core.ArticleStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update status of article %s: %w", id, err)
	}

	return requireRowAffected(result, id)
}

// IncrementCrawlAttempts bumps the durable delivery counter and returns
// the new value. The counter survives process restarts, so redeliveries
// of the same event keep counting from where they left off.
func (r *articleRepository) IncrementCrawlAttempts(ctx context.Context, id string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET crawl_attempts = crawl_attempts + 1, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment crawl attempts of article %s: %w", id, err)
	}

	err = requireRowAffected(result, id)
	if err != nil {
		return 0, err
	}

	var attempts int

	err = r.db.QueryRowContext(ctx,
		`SELECT crawl_attempts FROM articles WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to read crawl attempts of article %s: %w", id, err)
	}

	return attempts, nil
}

func (r *articleRepository) ResetCrawlAttempts(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET crawl_attempts = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reset crawl attempts of article %s: %w", id, err)
	}

	return requireRowAffected(result, id)
}

func (r *articleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete article %s: %w", id, err)
	}

	return requireRowAffected(result, id)
}

func requireRowAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("article %s: %w", id, core.ErrArticleNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner, withBody bool) (*core.Article, error) {
	var (
		article              core.Article
		canonicalURL         sql.NullString
		title                sql.NullString
		description          sql.NullString
		sourceName           sql.NullString
		authorName           sql.NullString
		imageURL             sql.NullString
		languageCode         sql.NullString
		compatibilityMessage sql.NullString
		html                 sql.NullString
		ssml                 sql.NullString
		bodyText             sql.NullString
	)

	dest := []any{
		&article.ID, &article.URL, &canonicalURL, &article.Status,
		&title, &description, &sourceName, &authorName, &imageURL,
		&languageCode, &article.ReadingTime, &compatibilityMessage,
		&article.CrawlAttempts, &article.CreatedAt, &article.UpdatedAt,
	}
	if withBody {
		dest = append(dest, &html, &ssml, &bodyText)
	}

	err := row.Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrArticleNotFound
		}

		return nil, fmt.Errorf("failed to scan article row: %w", err)
	}

	article.CanonicalURL = canonicalURL.String
	article.Title = title.String
	article.Description = description.String
	article.SourceName = sourceName.String
	article.AuthorName = authorName.String
	article.ImageURL = imageURL.String
	article.LanguageCode = languageCode.String
	article.CompatibilityMessage = compatibilityMessage.String
	article.HTML = html.String
	article.SSML = ssml.String
	article.Text = bodyText.String

	return &article, nil
}
