package upload

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
)

func openTestDB(t *testing.T) (*db.DB, *db.Task) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	org := &db.Organisation{Name: "Acme Lettings"}
	if err := database.CreateOrganisation(ctx, org); err != nil {
		t.Fatalf("failed to create organisation: %v", err)
	}
	task := &db.Task{OrgID: org.ID, Title: "Fix the boiler"}
	if err := database.CreateTask(ctx, task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return database, task
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func TestUploadOneFailsOneSucceeds(t *testing.T) {
	database, task := openTestDB(t)
	staging := t.TempDir()
	storeDir := t.TempDir()

	good := filepath.Join(staging, "boiler.png")
	writePNG(t, good, 400, 200)
	bad := filepath.Join(staging, "broken.jpg")
	if err := os.WriteFile(bad, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(database, &DirStorage{Root: storeDir, BaseURL: "http://localhost/files"}, nil)
	var mu sync.Mutex
	final := map[string]Status{}
	m.OnStatus(func(st Status) {
		mu.Lock()
		defer mu.Unlock()
		if st.Status == db.UploadUploaded || st.Status == db.UploadFailed {
			final[st.FileName] = st
		}
	})

	m.Start(context.Background(), task.ID, task.OrgID, []draft.Image{
		{ID: "img-1", FileName: "boiler.png", ContentType: "image/png", Path: good, Annotation: `{"arrows":1}`},
		{ID: "img-2", FileName: "broken.jpg", ContentType: "image/jpeg", Path: bad},
	})
	m.Wait()

	if got := final["boiler.png"]; got.Status != db.UploadUploaded || !strings.HasPrefix(got.URL, "http://localhost/files/tasks/") {
		t.Errorf("boiler.png final status = %+v", got)
	}
	if got := final["broken.jpg"]; got.Status != db.UploadFailed || got.Error == "" {
		t.Errorf("broken.jpg final status = %+v", got)
	}

	ctx := context.Background()
	attachments, err := database.ListAttachments(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListAttachments error: %v", err)
	}
	if len(attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(attachments))
	}
	for _, a := range attachments {
		switch a.FileName {
		case "boiler.png":
			if a.UploadStatus != db.UploadUploaded || a.FileURL == "" || a.ThumbnailURL == "" {
				t.Errorf("uploaded attachment = %+v", a)
			}
			if n, _ := database.CountAnnotations(ctx, a.ID); n != 1 {
				t.Errorf("expected 1 annotation, got %d", n)
			}
			thumb := filepath.Join(storeDir, "tasks", task.ID, a.ID+"-thumb.jpg")
			f, err := os.Open(thumb)
			if err != nil {
				t.Fatalf("thumbnail not stored: %v", err)
			}
			cfg, err := jpeg.DecodeConfig(f)
			f.Close()
			if err != nil || cfg.Width != ThumbnailSize || cfg.Height != ThumbnailSize/2 {
				t.Errorf("thumbnail config = %+v, %v", cfg, err)
			}
		case "broken.jpg":
			if a.UploadStatus != db.UploadFailed || !strings.Contains(a.ErrorMessage, "decode image") {
				t.Errorf("failed attachment = %+v", a)
			}
		}
	}

	if _, err := os.Stat(good); !os.IsNotExist(err) {
		t.Error("staged image should be removed after upload")
	}
}

func TestMakeVariantsNeverUpscales(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.png")
	writePNG(t, path, 40, 30)
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	v, err := MakeVariants(f)
	if err != nil {
		t.Fatalf("MakeVariants error: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(v.Optimized))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 40 || cfg.Height != 30 {
		t.Errorf("optimized size = %dx%d, want 40x30", cfg.Width, cfg.Height)
	}
}

func TestMakeVariantsRejectsHugeDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.png")
	writePNG(t, path, 40, 30)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := makeVariants(bytes.NewReader(data), 1000); err == nil || !strings.Contains(err.Error(), "40x30") {
		t.Errorf("expected pixel limit error, got %v", err)
	}

	// Rewrite the IHDR chunk to claim 100000x100000 without the pixel data.
	binary.BigEndian.PutUint32(data[16:20], 100000)
	binary.BigEndian.PutUint32(data[20:24], 100000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	if _, err := MakeVariants(bytes.NewReader(data)); err == nil || !strings.Contains(err.Error(), "100000x100000") {
		t.Errorf("expected pixel limit error, got %v", err)
	}
}

func TestDirStorageRejectsEscapingKeys(t *testing.T) {
	s := &DirStorage{Root: t.TempDir(), BaseURL: "/files/"}
	url, err := s.Put(context.Background(), "a/b.jpg", "image/jpeg", []byte("x"))
	if err != nil || url != "/files/a/b.jpg" {
		t.Errorf("Put = %q, %v", url, err)
	}
	if _, err := s.Put(context.Background(), "", "image/jpeg", nil); err == nil {
		t.Error("expected error for empty key")
	}
}
