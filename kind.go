package mediasync

import "fmt"

// Kind selects which storage backend the factory instantiates.
type Kind string

const (
	// KindLocal stores files in a local directory.
	KindLocal Kind = "local"
	// KindMinIO stores files in an S3-compatible bucket.
	KindMinIO Kind = "minio"
	// KindGoogleDrive stores files in a Google Drive folder.
	KindGoogleDrive Kind = "google_drive"
	// KindAzure stores files in an Azure Blob Storage container.
	KindAzure Kind = "azure"
)

// ParseKind normalizes a raw configuration value into a Kind.
// Configuration values arrive as plain strings; this is the single place
// where they are checked against the closed set of backends.
func ParseKind(s string) (Kind, error) {
	switch kind := Kind(s); kind {
	case KindLocal, KindMinIO, KindGoogleDrive, KindAzure:
		return kind, nil
	}

	return "", UnknownKindError{Value: s}
}

func (k Kind) String() string {
	return string(k)
}

// UnknownKindError means a raw driver value does not name a known backend.
type UnknownKindError struct {
	Value string
}

func (err UnknownKindError) Error() string {
	return fmt.Sprintf("unknown storage driver '%s'", err.Value)
}
