// Package fetch downloads a distribution image and unpacks it onto a local
// path, ready to be bound and mounted.
package fetch

import (
	"archive/zip"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshhttp "github.com/cloudfoundry/bosh-utils/httpclient"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshsys "github.com/cloudfoundry/bosh-utils/system"
	"github.com/ulikunitz/xz"
)

type Loader interface {
	// Load fetches imageURL and writes the contained raw image to imagePath.
	// Zip archives yield their first .img member; xz streams are
	// decompressed; anything else is saved as-is.
	Load(imageURL, imagePath string) error
}

type loader struct {
	logger boshlog.Logger
	client boshhttp.Client
	fs     boshsys.FileSystem
	logTag string
}

func NewLoader(logger boshlog.Logger, client boshhttp.Client, fs boshsys.FileSystem) Loader {
	return loader{
		logger: logger,
		client: client,
		fs:     fs,
		logTag: "ImageLoader",
	}
}

func (l loader) Load(imageURL, imagePath string) error {
	req, err := http.NewRequest("GET", imageURL, nil)
	if err != nil {
		return bosherr.WrapErrorf(err, "Building request for '%s'", imageURL)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return bosherr.WrapErrorf(err, "Downloading '%s'", imageURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return bosherr.Errorf("Downloading '%s': status %d", imageURL, resp.StatusCode)
	}

	switch urlExtension(imageURL) {
	case ".zip":
		return l.extractZip(resp.Body, imagePath)
	case ".xz":
		xzReader, err := xz.NewReader(resp.Body)
		if err != nil {
			return bosherr.WrapErrorf(err, "Decompressing '%s'", imageURL)
		}
		return l.writeImage(xzReader, imagePath)
	default:
		return l.writeImage(resp.Body, imagePath)
	}
}

// extractZip spools the archive to disk first; zip needs random access.
func (l loader) extractZip(body io.Reader, imagePath string) error {
	tempDir, err := l.fs.TempDir("img-tool-download")
	if err != nil {
		return bosherr.WrapError(err, "Creating download directory")
	}
	defer l.fs.RemoveAll(tempDir) //nolint:errcheck

	archivePath := filepath.Join(tempDir, "image.zip")
	if err := l.writeImage(body, archivePath); err != nil {
		return err
	}

	archive, err := zip.OpenReader(archivePath)
	if err != nil {
		return bosherr.WrapError(err, "Opening downloaded archive")
	}
	defer archive.Close() //nolint:errcheck

	for _, member := range archive.File {
		if !strings.HasSuffix(strings.ToLower(member.Name), ".img") {
			continue
		}

		reader, err := member.Open()
		if err != nil {
			return bosherr.WrapErrorf(err, "Opening archive member '%s'", member.Name)
		}
		defer reader.Close() //nolint:errcheck

		l.logger.Info(l.logTag, "Extracting '%s'", member.Name)
		return l.writeImage(reader, imagePath)
	}

	return bosherr.Error("Archive contains no .img member")
}

func (l loader) writeImage(reader io.Reader, imagePath string) error {
	file, err := l.fs.OpenFile(imagePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return bosherr.WrapErrorf(err, "Creating '%s'", imagePath)
	}
	defer file.Close() //nolint:errcheck

	if _, err := io.Copy(file, reader); err != nil {
		return bosherr.WrapErrorf(err, "Writing '%s'", imagePath)
	}

	return nil
}

func urlExtension(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return strings.ToLower(path.Ext(imageURL))
	}
	return strings.ToLower(path.Ext(parsed.Path))
}
