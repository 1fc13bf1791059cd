// Package audio assembles synthesized audio fragments into a single file.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Static errors for assembly failures.
var (
	// ErrNoAudioFiles indicates assembly was requested without input files.
	ErrNoAudioFiles = errors.New("no audio files to assemble")
	// ErrAssemblyFailed indicates the output file could not be produced.
	ErrAssemblyFailed = errors.New("audio assembly failed")
)

// Directory permissions for created output paths.
const dirPermissions = 0o755

// Assemble concatenates the fragment files, in the given order, into a
// single file at outputPath. A single input is copied byte for byte so
// the output is identical to the fragment. On any failure no file is
// left at outputPath.
func Assemble(fragmentPaths []string, outputPath string) error {
	if len(fragmentPaths) == 0 {
		return ErrNoAudioFiles
	}

	err := EnsureDir(filepath.Dir(outputPath))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
	}

	// Build into a scratch file and rename so a partial result never
	// lands at outputPath.
	partPath := outputPath + ".part"

	err = writeConcatenated(fragmentPaths, partPath)
	if err != nil {
		removeErr := os.Remove(partPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return errors.Join(err, removeErr)
		}

		return err
	}

	err = os.Rename(partPath, outputPath)
	if err != nil {
		return fmt.Errorf("%w: failed to move assembled file: %w", ErrAssemblyFailed, err)
	}

	return nil
}

// EnsureDir creates the directory (and parents) if it does not exist.
func EnsureDir(dir string) error {
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return nil
}

func writeConcatenated(fragmentPaths []string, outputPath string) error {
	output, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create output file: %w", ErrAssemblyFailed, err)
	}

	for _, fragmentPath := range fragmentPaths {
		err = appendFile(output, fragmentPath)
		if err != nil {
			closeErr := output.Close()
			if closeErr != nil {
				return errors.Join(err, closeErr)
			}

			return err
		}
	}

	err = output.Close()
	if err != nil {
		return fmt.Errorf("%w: failed to close output file: %w", ErrAssemblyFailed, err)
	}

	return nil
}

func appendFile(output *os.File, fragmentPath string) error {
	fragment, err := os.Open(fragmentPath)
	if err != nil {
		return fmt.Errorf("%w: failed to open fragment %s: %w", ErrAssemblyFailed, fragmentPath, err)
	}
	defer fragment.Close()

	_, err = io.Copy(output, fragment)
	if err != nil {
		return fmt.Errorf("%w: failed to append fragment %s: %w", ErrAssemblyFailed, fragmentPath, err)
	}

	return nil
}
