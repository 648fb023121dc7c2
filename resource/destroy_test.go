package resource

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestDeferredDestroyRetention(t *testing.T) {
	p, dev := newTestPool(t, PoolConfig{FramesInFlight: 3})

	h, _ := p.CreateBuffer(BufferDesc{Label: "staging", Size: 64})
	p.DestroyBuffer(h, 10)

	for _, completed := range []uint64{9, 10, 11, 12} {
		if n := p.Cleanup(completed); n != 0 {
			t.Errorf("Cleanup(%d) destroyed %d, want 0", completed, n)
		}
		if _, ok := p.Buffer(h); !ok {
			t.Fatalf("buffer gone after Cleanup(%d), want retained through 12", completed)
		}
	}

	if n := p.Cleanup(13); n != 1 {
		t.Errorf("Cleanup(13) destroyed %d, want 1", n)
	}
	if _, ok := p.Buffer(h); ok {
		t.Error("buffer still resolves after Cleanup(13)")
	}
	if dev.buffers != 1 {
		t.Errorf("device destroys = %d, want 1", dev.buffers)
	}
}

func TestDeferredDestroyNeverTwice(t *testing.T) {
	p, dev := newTestPool(t, PoolConfig{FramesInFlight: 2})

	h, _ := p.CreateBuffer(BufferDesc{Label: "b", Size: 4})
	p.DestroyBuffer(h, 1)
	p.DestroyBuffer(h, 2)
	if got := p.Pending(); got != 1 {
		t.Errorf("Pending() = %d after repeated destroy, want 1", got)
	}

	p.Cleanup(100)
	p.Cleanup(101)
	p.DestroyBuffer(h, 50)
	p.Cleanup(200)

	if dev.buffers != 1 {
		t.Errorf("device destroys = %d, want exactly 1", dev.buffers)
	}
}

func TestDeferredThenImmediate(t *testing.T) {
	p, dev := newTestPool(t, PoolConfig{})

	h, _ := p.CreateBuffer(BufferDesc{Label: "b", Size: 4})
	p.DestroyBuffer(h, 1)
	if !p.DestroyBufferImmediate(h) {
		t.Fatal("immediate destroy of a pending buffer failed")
	}
	if got := p.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0 after immediate destroy", got)
	}
	p.Cleanup(100)
	if dev.buffers != 1 {
		t.Errorf("device destroys = %d, want 1", dev.buffers)
	}
}

func TestCleanupPartitionsByFrame(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{FramesInFlight: 3})

	var hs []BufferHandle
	for frame := uint64(1); frame <= 4; frame++ {
		h, _ := p.CreateBuffer(BufferDesc{Size: 4})
		p.DestroyBuffer(h, frame)
		hs = append(hs, h)
	}

	if n := p.Cleanup(5); n != 2 {
		t.Fatalf("Cleanup(5) destroyed %d, want 2 (frames 1 and 2)", n)
	}
	for i, h := range hs {
		_, ok := p.Buffer(h)
		if want := i >= 2; ok != want {
			t.Errorf("buffer of frame %d present = %v, want %v", i+1, ok, want)
		}
	}
	if got := p.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
}

func TestViewAliasing(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{})
	ih, _ := p.CreateImage(testImage)

	a, err := p.GetOrCreateView(ih, ViewDesc{}, "full")
	if err != nil {
		t.Fatalf("GetOrCreateView: %v", err)
	}
	b, _ := p.GetOrCreateView(ih, ViewDesc{}, "full_again")
	if a != b {
		t.Errorf("same description returned %v and %v, want one handle", a, b)
	}

	explicit := ViewDesc{
		Format:          gputypes.TextureFormatRGBA8Unorm,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	}
	c, _ := p.GetOrCreateView(ih, explicit, "explicit")
	if c != a {
		t.Errorf("explicit equivalent of default view returned %v, want %v", c, a)
	}

	d, _ := p.GetOrCreateView(ih, ViewDesc{Format: gputypes.TextureFormatRGBA8UnormSrgb}, "srgb")
	if d == a {
		t.Error("different description returned the same handle")
	}
	if got := len(p.Views(ih)); got != 2 {
		t.Errorf("len(Views) = %d, want 2", got)
	}
}

func TestDestroyImageDestroysViews(t *testing.T) {
	tests := []struct {
		name    string
		destroy func(p *Pool, h ImageHandle)
	}{
		{"deferred", func(p *Pool, h ImageHandle) {
			p.DestroyImage(h, 5)
			p.Cleanup(8)
		}},
		{"immediate", func(p *Pool, h ImageHandle) {
			p.DestroyImageImmediate(h)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, dev := newTestPool(t, PoolConfig{FramesInFlight: 3})
			ih, _ := p.CreateImage(testImage)
			v1, _ := p.GetOrCreateView(ih, ViewDesc{}, "v1")
			v2, _ := p.GetOrCreateView(ih, ViewDesc{Dimension: gputypes.TextureViewDimension2DArray}, "v2")

			tt.destroy(p, ih)

			if _, ok := p.Image(ih); ok {
				t.Error("image still resolves")
			}
			for _, v := range []ImageViewHandle{v1, v2} {
				if _, ok := p.ImageView(v); ok {
					t.Errorf("view %v survived its image", v)
				}
			}
			if dev.textures != 1 || dev.views != 2 {
				t.Errorf("destroys = (%d textures, %d views), want (1, 2)", dev.textures, dev.views)
			}
		})
	}
}

func TestDeferredImageKeepsViewsUntilCleanup(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{FramesInFlight: 3})
	ih, _ := p.CreateImage(testImage)
	vh, _ := p.GetOrCreateView(ih, ViewDesc{}, "v")

	p.DestroyImage(ih, 10)
	if _, ok := p.ImageView(vh); !ok {
		t.Error("view of a pending image stopped resolving before cleanup")
	}
	if _, err := p.GetOrCreateView(ih, ViewDesc{}, "late"); !errors.Is(err, ErrResourceRetired) {
		t.Errorf("GetOrCreateView on pending image: err = %v, want ErrResourceRetired", err)
	}
	p.Cleanup(12)
	if _, ok := p.ImageView(vh); !ok {
		t.Error("view gone before the retention window elapsed")
	}
	p.Cleanup(13)
	if _, ok := p.ImageView(vh); ok {
		t.Error("view still resolves after its image was freed")
	}
}

func TestDestroyedImageDropsQueuedViews(t *testing.T) {
	tests := []struct {
		name    string
		destroy func(p *Pool, h ImageHandle)
	}{
		{"immediate", func(p *Pool, h ImageHandle) {
			p.DestroyImageImmediate(h)
		}},
		{"deferred image due first", func(p *Pool, h ImageHandle) {
			p.DestroyImage(h, 1)
			p.Cleanup(4)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, dev := newTestPool(t, PoolConfig{FramesInFlight: 3})
			ih, _ := p.CreateImage(testImage)
			vh, _ := p.GetOrCreateView(ih, ViewDesc{}, "v")
			p.DestroyImageView(vh, 2)

			tt.destroy(p, ih)

			if got := p.Pending(); got != 0 {
				t.Errorf("Pending() = %d with no live resources, want 0", got)
			}
			if n := p.Cleanup(100); n != 0 {
				t.Errorf("Cleanup(100) destroyed %d, want 0", n)
			}
			if dev.textures != 1 || dev.views != 1 {
				t.Errorf("destroys = (%d textures, %d views), want (1, 1)", dev.textures, dev.views)
			}
		})
	}
}

func TestDestroyViewUncaches(t *testing.T) {
	for _, immediate := range []bool{false, true} {
		p, dev := newTestPool(t, PoolConfig{FramesInFlight: 1})
		ih, _ := p.CreateImage(testImage)
		first, _ := p.GetOrCreateView(ih, ViewDesc{}, "v")

		if immediate {
			p.DestroyImageViewImmediate(first)
		} else {
			p.DestroyImageView(first, 1)
		}

		second, err := p.GetOrCreateView(ih, ViewDesc{}, "v")
		if err != nil {
			t.Fatalf("immediate=%v: GetOrCreateView: %v", immediate, err)
		}
		if second == first {
			t.Errorf("immediate=%v: destroyed view handed out again", immediate)
		}

		p.Cleanup(2)
		if _, ok := p.ImageView(first); ok {
			t.Errorf("immediate=%v: destroyed view still resolves", immediate)
		}
		if got := p.Views(ih); len(got) != 1 || got[0] != second {
			t.Errorf("immediate=%v: Views = %v, want [%v]", immediate, got, second)
		}
		if dev.views != 1 {
			t.Errorf("immediate=%v: view destroys = %d, want 1", immediate, dev.views)
		}
	}
}

func TestViewOfUnknownImage(t *testing.T) {
	p, _ := newTestPool(t, PoolConfig{})
	ih, _ := p.CreateImage(testImage)
	p.DestroyImageImmediate(ih)

	if _, err := p.GetOrCreateView(ih, ViewDesc{}, "v"); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("err = %v, want ErrInvalidHandle", err)
	}
}
