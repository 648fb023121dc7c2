package resource

import (
	"fmt"

	"github.com/gogpu/rendergraph/internal/slotmap"
)

// BufferHandle refers to a Buffer in a Pool. The zero value is invalid.
type BufferHandle struct{ key slotmap.Key }

// ImageHandle refers to an Image in a Pool. The zero value is invalid.
type ImageHandle struct{ key slotmap.Key }

// ImageViewHandle refers to an ImageView in a Pool. The zero value is invalid.
type ImageViewHandle struct{ key slotmap.Key }

// IsZero reports whether h is the zero handle.
func (h BufferHandle) IsZero() bool { return h.key.IsZero() }

// IsZero reports whether h is the zero handle.
func (h ImageHandle) IsZero() bool { return h.key.IsZero() }

// IsZero reports whether h is the zero handle.
func (h ImageViewHandle) IsZero() bool { return h.key.IsZero() }

func (h BufferHandle) String() string    { return formatKey("buffer", h.key) }
func (h ImageHandle) String() string     { return formatKey("image", h.key) }
func (h ImageViewHandle) String() string { return formatKey("view", h.key) }

func formatKey(kind string, k slotmap.Key) string {
	if k.IsZero() {
		return kind + "#nil"
	}
	return fmt.Sprintf("%s#%d.%d", kind, k.Index, k.Gen)
}
