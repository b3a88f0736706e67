package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/arthur-debert/nanocache/nanocache"
	"gopkg.in/yaml.v3"
)

// WriteArchive writes data as a zip archive to w
func WriteArchive(data *Data, w io.Writer) error {
	seed, err := yaml.Marshal(data.Seed)
	if err != nil {
		return fmt.Errorf("failed to encode seed: %w", err)
	}

	zipWriter := zip.NewWriter(w)
	if err := addFile(zipWriter, SeedFilename, time.Now(), seed); err != nil {
		return err
	}
	for _, object := range data.Objects {
		if err := addFile(zipWriter, object.Filename, object.Modified, []byte(object.Content)); err != nil {
			return err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// CreateArchive writes data to a new file at path. A partial file is removed
// on failure.
func CreateArchive(data *Data, path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close archive: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return WriteArchive(data, file)
}

func addFile(zipWriter *zip.Writer, name string, modified time.Time, content []byte) error {
	writer, err := zipWriter.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s in archive: %w", name, err)
	}
	if _, err := writer.Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Extract reads an archive back. The seed is parsed and validated; every
// other file becomes an ObjectFile.
func Extract(path string) (*Data, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = reader.Close() }()

	data := &Data{Objects: []ObjectFile{}}
	for _, file := range reader.File {
		content, err := readFile(file)
		if err != nil {
			return nil, err
		}
		if file.Name != SeedFilename {
			data.Objects = append(data.Objects, ObjectFile{
				Filename: file.Name,
				Modified: file.Modified,
				Content:  string(content),
			})
			continue
		}
		if data.Seed, err = nanocache.ParseSeed(content); err != nil {
			return nil, err
		}
	}

	if data.Seed == nil {
		return nil, fmt.Errorf("archive has no %s", SeedFilename)
	}
	for name, entities := range data.Seed.Collections {
		data.Collection = name
		data.Entities = len(entities)
	}
	return data, nil
}

// ReadSeed returns the seed of an archive
func ReadSeed(path string) (*nanocache.SeedFile, error) {
	data, err := Extract(path)
	if err != nil {
		return nil, err
	}
	return data.Seed, nil
}

func readFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer func() { _ = rc.Close() }()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	return content, nil
}
