package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/articast/articast/internal/core"
)

const audiofileColumns = `id, article_id, url, bucket, filename, length,
	mime_type, voice_name, language_code, created_at`

type audiofileRepository struct {
	db *sql.DB
}

func (r *audiofileRepository) FindByID(ctx context.Context, id string) (*core.Audiofile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+audiofileColumns+` FROM audiofiles WHERE id = ?`, id)

	audiofile, err := scanAudiofile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrAudiofileNotFound
		}

		return nil, err
	}

	return audiofile, nil
}

func (r *audiofileRepository) FindByArticleID(ctx context.Context, articleID string) ([]core.Audiofile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+audiofileColumns+` FROM audiofiles
		WHERE article_id = ? ORDER BY created_at`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audiofiles of article %s: %w", articleID, err)
	}
	defer rows.Close()

	var audiofiles []core.Audiofile

	for rows.Next() {
		audiofile, scanErr := scanAudiofile(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		audiofiles = append(audiofiles, *audiofile)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate audiofiles of article %s: %w", articleID, err)
	}

	return audiofiles, nil
}

// Save inserts the audiofile. The unique index on article_id makes the
// database the authority on the one-audiofile-per-article rule; a
// violation surfaces as core.ErrAudiofileExists.
func (r *audiofileRepository) Save(ctx context.Context, audiofile *core.Audiofile) error {
	audiofile.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audiofiles (id, article_id, url, bucket, filename, length,
			mime_type, voice_name, language_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		audiofile.ID, audiofile.ArticleID, audiofile.URL, audiofile.Bucket,
		audiofile.Filename, audiofile.Length, audiofile.MimeType,
		audiofile.VoiceName, audiofile.LanguageCode, audiofile.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "article_id") {
			return fmt.Errorf("article %s: %w", audiofile.ArticleID, core.ErrAudiofileExists)
		}

		return fmt.Errorf("failed to save audiofile %s: %w", audiofile.ID, err)
	}

	return nil
}

func scanAudiofile(row rowScanner) (*core.Audiofile, error) {
	var (
		audiofile    core.Audiofile
		voiceName    sql.NullString
		languageCode sql.NullString
	)

	err := row.Scan(&audiofile.ID, &audiofile.ArticleID, &audiofile.URL,
		&audiofile.Bucket, &audiofile.Filename, &audiofile.Length,
		&audiofile.MimeType, &voiceName, &languageCode, &audiofile.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan audiofile row: %w", err)
	}

	audiofile.VoiceName = voiceName.String
	audiofile.LanguageCode = languageCode.String

	return &audiofile, nil
}
