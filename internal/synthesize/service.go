// Package synthesize turns an article's SSML into a single stored
// audiofile: split, synthesize fragments concurrently, reassemble in
// order, upload.
package synthesize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/articast/articast/internal/audio"
	"github.com/articast/articast/internal/core"
	"github.com/articast/articast/internal/ssml"
)

const filePermissions = 0o600

// Options tunes the synthesis pipeline.
type Options struct {
	// WorkDir holds per-article scratch directories during synthesis.
	WorkDir string
	// SoftLimit and HardLimit bound the SSML fragments sent to the
	// speech service.
	SoftLimit int
	HardLimit int
	// MaxConcurrentFragments caps the parallel synthesis calls.
	MaxConcurrentFragments int
	// DefaultVoice is used when the request does not name a voice.
	DefaultVoice core.Voice
}

// Service orchestrates one article-to-audiofile synthesis.
type Service struct {
	articles    core.ArticleRepository
	audiofiles  core.AudiofileRepository
	synthesizer core.SpeechSynthesizer
	storage     core.ObjectStorage
	log         *logger.Logger
	opts        Options
}

// NewService wires the synthesis orchestrator.
func NewService(
	articles core.ArticleRepository,
	audiofiles core.AudiofileRepository,
	synthesizer core.SpeechSynthesizer,
	storage core.ObjectStorage,
	log *logger.Logger,
	opts Options,
) *Service {
	if opts.MaxConcurrentFragments <= 0 {
		opts.MaxConcurrentFragments = 1
	}

	if opts.SoftLimit <= 0 || opts.HardLimit <= 0 {
		opts.SoftLimit = ssml.DefaultSoftLimit
		opts.HardLimit = ssml.DefaultHardLimit
	}

	return &Service{
		articles:    articles,
		audiofiles:  audiofiles,
		synthesizer: synthesizer,
		storage:     storage,
		log:         log,
		opts:        opts,
	}
}

// Synthesize produces the article's audiofile. An article holds at most
// one audiofile: a second call fails with core.ErrAudiofileExists naming
// the existing id, and the existing row is returned alongside the error
// so callers can point the client at it. The upfront lookup is only an
// optimization; the unique index on article_id is the authority, so a
// lost insert race reports the same error.
func (s *Service) Synthesize(ctx context.Context, articleID string, voice core.Voice) (*core.Audiofile, error) {
	existing, err := s.findExisting(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return existing, fmt.Errorf(
			"article %s already has audiofile %s: %w",
			articleID, existing.ID, core.ErrAudiofileExists)
	}

	article, err := s.articles.FindByIDWithBody(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", articleID, err)
	}

	if article.SSML == "" {
		return nil, fmt.Errorf("article %s: %w", articleID, core.ErrNoSSML)
	}

	voice = s.resolveVoice(voice)

	encoding, err := core.EncodingForMimeType(voice.MimeType)
	if err != nil {
		return nil, err
	}

	fragments, err := ssml.Split(article.SSML, ssml.SplitOptions{
		SoftLimit: s.opts.SoftLimit,
		HardLimit: s.opts.HardLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to split ssml of article %s: %w", articleID, err)
	}

	s.log.Info("Synthesizing article %s: %d fragment(s), voice %s", articleID, len(fragments), voice.Name)

	// The audiofile id is allocated upfront so the storage key and the
	// database row always agree.
	audiofileID := uuid.NewString()

	workDir := filepath.Join(s.opts.WorkDir, articleID)

	err = audio.EnsureDir(workDir)
	if err != nil {
		return nil, err
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			s.log.Warn("Failed to remove work dir %s: %v", workDir, removeErr)
		}
	}()

	fragmentPaths, err := s.synthesizeFragments(ctx, articleID, fragments, voice, encoding, workDir)
	if err != nil {
		return nil, err
	}

	assembledPath := filepath.Join(workDir, audiofileID+extensionForMimeType(voice.MimeType))

	err = audio.Assemble(fragmentPaths, assembledPath)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble audiofile for article %s: %w", articleID, err)
	}

	return s.storeAudiofile(ctx, article, audiofileID, assembledPath, voice)
}

// findExisting returns the article's audiofile when one exists.
func (s *Service) findExisting(ctx context.Context, articleID string) (*core.Audiofile, error) {
	stored, err := s.audiofiles.FindByArticleID(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up audiofiles of article %s: %w", articleID, err)
	}

	if len(stored) == 0 {
		return nil, nil
	}

	return &stored[0], nil
}

func (s *Service) resolveVoice(voice core.Voice) core.Voice {
	if voice.Name == "" {
		voice.Name = s.opts.DefaultVoice.Name
	}

	if voice.LanguageCode == "" {
		voice.LanguageCode = s.opts.DefaultVoice.LanguageCode
	}

	if voice.MimeType == "" {
		voice.MimeType = s.opts.DefaultVoice.MimeType
	}

	return voice
}

// synthesizeFragments fans the fragments out to the speech service with
// bounded concurrency and returns the fragment file paths in document
// order. Any fragment failure fails the whole article; a partial
// narration is worse than none.
func (s *Service) synthesizeFragments(
	ctx context.Context,
	articleID string,
	fragments []string,
	voice core.Voice,
	encoding, workDir string,
) ([]string, error) {
	fragmentCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		firstErr  error
	)

	workerPool := make(chan struct{}, s.opts.MaxConcurrentFragments)
	extension := extensionForMimeType(voice.MimeType)
	fragmentPaths := make([]string, len(fragments))

	for fragmentIndex, fragment := range fragments {
		fragmentPaths[fragmentIndex] = filepath.Join(workDir,
			fmt.Sprintf("%s-%d%s", articleID, fragmentIndex, extension))

		waitGroup.Add(1)

		go func(index int, ssmlFragment, outputPath string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			// A sibling fragment already failed, skip the call.
			if fragmentCtx.Err() != nil {
				return
			}

			err := s.synthesizeFragment(fragmentCtx, ssmlFragment, voice, encoding, outputPath)
			if err != nil {
				mutex.Lock()

				if firstErr == nil {
					firstErr = fmt.Errorf("fragment %d of article %s: %w", index, articleID, err)
				}

				mutex.Unlock()
				cancel()

				return
			}

			s.log.Info("Synthesized fragment %d/%d of article %s", index+1, len(fragments), articleID)
		}(fragmentIndex, fragment, fragmentPaths[fragmentIndex])
	}

	waitGroup.Wait()
	close(workerPool)

	if firstErr != nil {
		return nil, firstErr
	}

	return fragmentPaths, nil
}

func (s *Service) synthesizeFragment(
	ctx context.Context,
	fragment string,
	voice core.Voice,
	encoding, outputPath string,
) error {
	audioData, err := s.synthesizer.Synthesize(ctx, core.SynthesisRequest{
		SSML:          fragment,
		VoiceName:     voice.Name,
		LanguageCode:  voice.LanguageCode,
		AudioEncoding: encoding,
	})
	if err != nil {
		return err
	}

	err = os.WriteFile(outputPath, audioData, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write fragment audio: %w", err)
	}

	return nil
}

// storeAudiofile uploads the assembled file and inserts the row. The
// unique index on article_id is the authority on duplicates: losing the
// insert race means another synthesis won, so the upload is rolled back
// and the duplicate reported with the winner's id.
func (s *Service) storeAudiofile(
	ctx context.Context,
	article *core.Article,
	audiofileID, assembledPath string,
	voice core.Voice,
) (*core.Audiofile, error) {
	key := ObjectKey(article.ID, audiofileID, extensionForMimeType(voice.MimeType))

	publicURL, err := s.storage.UploadFile(ctx, assembledPath, key, voice.MimeType, map[string]string{
		"articleId":   article.ID,
		"audiofileId": audiofileID,
		"voice":       voice.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload audiofile of article %s: %w", article.ID, err)
	}

	audiofile := &core.Audiofile{
		ID:           audiofileID,
		ArticleID:    article.ID,
		URL:          publicURL,
		Bucket:       s.storage.Bucket(),
		Filename:     key,
		Length:       article.ReadingTime,
		MimeType:     voice.MimeType,
		VoiceName:    voice.Name,
		LanguageCode: voice.LanguageCode,
	}

	err = s.audiofiles.Save(ctx, audiofile)
	if err != nil {
		// The row is the source of truth. Whatever made the insert fail,
		// an object without a row must not survive.
		deleteErr := s.storage.Delete(ctx, key)
		if deleteErr != nil {
			s.log.Warn("Failed to remove orphan object %s: %v", key, deleteErr)
		}

		if errors.Is(err, core.ErrAudiofileExists) {
			winner, findErr := s.findExisting(ctx, article.ID)
			if findErr == nil && winner != nil {
				return winner, fmt.Errorf(
					"article %s already has audiofile %s: %w",
					article.ID, winner.ID, core.ErrAudiofileExists)
			}
		}

		return nil, fmt.Errorf("failed to save audiofile of article %s: %w", article.ID, err)
	}

	s.log.Info("Stored audiofile %s for article %s at %s", audiofileID, article.ID, publicURL)

	return audiofile, nil
}

// ObjectKey is the storage key of an article's assembled audiofile.
func ObjectKey(articleID, audiofileID, extension string) string {
	return "articles/" + articleID + "/audiofiles/" + audiofileID + extension
}

func extensionForMimeType(mimeType string) string {
	switch mimeType {
	case "audio/opus":
		return ".ogg"
	case "audio/wav":
		return ".wav"
	default:
		return ".mp3"
	}
}
