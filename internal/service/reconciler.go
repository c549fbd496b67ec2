package service

import (
	"context"
	"fmt"
	"io"

	"misha-catalog/internal/blobstore"
	"misha-catalog/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImageUpload is one file from the request, addressed to a variant position.
type ImageUpload struct {
	VariantIndex int
	Filename     string
	Alt          string
	Content      io.Reader
}

// ImageReconciler merges existing variant images, newly uploaded files, and
// client-requested removals into final per-variant image lists, and enforces
// the exactly-one-primary invariant.
type ImageReconciler struct {
	store  blobstore.BlobStore
	logger *zap.Logger
	folder string
}

func NewImageReconciler(store blobstore.BlobStore, folder string, logger *zap.Logger) *ImageReconciler {
	return &ImageReconciler{store: store, folder: folder, logger: logger}
}

// Reconcile resolves the final image set for each variant position.
// Existing images are carried over from the previous variant with the same
// color. Upload failures are fatal; removal deletes against the blob store
// are best-effort, because the domain list must stay consistent even when
// the external store misbehaves. The returned public ids are every object
// uploaded during this call, for compensating deletes on a later abort.
func (r *ImageReconciler) Reconcile(
	ctx context.Context,
	existing []domain.Variant,
	parsed []domain.Variant,
	uploads []ImageUpload,
	removals map[int][]string,
	creating bool,
) ([]domain.Variant, []string, error) {
	// First match wins when previous variants share a color.
	existingByColor := make(map[uuid.UUID][]domain.VariantImage, len(existing))
	for _, v := range existing {
		if _, ok := existingByColor[v.ColorID]; !ok {
			existingByColor[v.ColorID] = v.Images
		}
	}

	uploadsByIndex := make(map[int][]ImageUpload, len(uploads))
	for _, up := range uploads {
		uploadsByIndex[up.VariantIndex] = append(uploadsByIndex[up.VariantIndex], up)
	}

	uploaded := []string{}
	out := make([]domain.Variant, len(parsed))
	for i, v := range parsed {
		images := append([]domain.VariantImage(nil), existingByColor[v.ColorID]...)

		for n, up := range uploadsByIndex[i] {
			res, err := r.store.Upload(ctx, up.Content, up.Filename, r.folder)
			if err != nil {
				return nil, uploaded, Wrap(KindUploadFailed,
					fmt.Sprintf("failed to upload image for variant %d", i+1), err)
			}
			uploaded = append(uploaded, res.PublicID)
			if !ValidImageURL(res.URL) {
				return nil, uploaded, Ef(KindUploadFailed,
					"blob store returned an unusable image url %q for variant %d", res.URL, i+1)
			}
			alt := up.Alt
			if alt == "" {
				alt = fmt.Sprintf("Variant %d Image %d", i, n+1)
			}
			images = append(images, domain.VariantImage{
				URL:      res.URL,
				PublicID: res.PublicID,
				Alt:      alt,
			})
		}

		for _, publicID := range removals[i] {
			idx := indexOfImage(images, publicID)
			if idx < 0 {
				// Not owned by this variant position; never touch another
				// variant's images.
				r.logger.Warn("ignoring removal of unknown image",
					zap.String("public_id", publicID),
					zap.Int("variant", i))
				continue
			}
			images = append(images[:idx], images[idx+1:]...)
			if err := r.store.Delete(ctx, publicID); err != nil {
				r.logger.Warn("blob delete failed",
					zap.String("public_id", publicID),
					zap.Error(err))
			}
		}

		v.Images = enforceSinglePrimary(images)
		out[i] = v
	}

	if len(uploads) > 0 && !anyImages(out) {
		if creating {
			return nil, uploaded, E(KindImagesNotAssigned, "uploaded images must be assigned to a variant")
		}
		return nil, uploaded, E(KindNoVariantImages, "at least one variant must have images")
	}

	return out, uploaded, nil
}

// enforceSinglePrimary keeps the first primary image and clears the rest;
// when none is marked and the list is non-empty, the first image wins.
func enforceSinglePrimary(images []domain.VariantImage) []domain.VariantImage {
	if len(images) == 0 {
		return images
	}
	found := false
	for i := range images {
		if images[i].IsPrimary {
			if found {
				images[i].IsPrimary = false
			}
			found = true
		}
	}
	if !found {
		images[0].IsPrimary = true
	}
	return images
}

func indexOfImage(images []domain.VariantImage, publicID string) int {
	for i := range images {
		if images[i].PublicID == publicID {
			return i
		}
	}
	return -1
}

func anyImages(variants []domain.Variant) bool {
	for _, v := range variants {
		if len(v.Images) > 0 {
			return true
		}
	}
	return false
}
