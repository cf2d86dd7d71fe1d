package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/domain"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/httpx"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/storage"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/services"
)

const (
	maxReturnFormSize   = 20 << 20 // request images included
	maxReturnImageCount = 5
)

// ImageUploader stores return evidence images and yields their location.
type ImageUploader interface {
	Upload(ctx context.Context, object, contentType string, r io.Reader) (string, error)
}

// ReturnHandlers exposes the customer-facing return endpoints. Whole-order
// returns fan out over every delivered line, so the handler also needs order
// reads.
type ReturnHandlers struct {
	orders   services.OrderService
	returns  services.ReturnService
	uploader ImageUploader
}

func NewReturnHandlers(orders services.OrderService, returns services.ReturnService, uploader ImageUploader) *ReturnHandlers {
	return &ReturnHandlers{orders: orders, returns: returns, uploader: uploader}
}

// Routes registers the return endpoints inside the /orders group.
func (h *ReturnHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/return", h.requestReturn)
	r.Post("/{orderID}/return/{productID}", h.requestReturn)
	r.Post("/{orderID}/cancel-return", h.cancelReturn)
	r.Post("/{orderID}/cancel-return/{productID}", h.cancelReturn)
	r.Get("/{orderID}/refund-status", h.refundStatus)
}

func (h *ReturnHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")
	productID := chi.URLParam(r, "productID")

	if err := r.ParseMultipartForm(maxReturnFormSize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request must be multipart form data", http.StatusBadRequest))
		return
	}

	cmd := services.ReturnRequestCommand{
		OrderID:         orderID,
		UserID:          userID,
		ProductID:       productID,
		IssueType:       r.FormValue("issueType"),
		IssueDesc:       r.FormValue("issueDesc"),
		Resolution:      domain.ResolutionType(strings.TrimSpace(r.FormValue("resolution"))),
		ExchangeToColor: r.FormValue("exchangeToColor"),
		ExchangeToSize:  r.FormValue("exchangeToSize"),
	}

	images, err := h.storeImages(ctx, orderID, productID, r.MultipartForm)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_failed", err.Error(), http.StatusBadRequest))
		return
	}
	cmd.Images = images
	if len(cmd.Images) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one evidence image is required", http.StatusBadRequest))
		return
	}

	if productID != "" {
		order, err := h.returns.RequestReturn(ctx, cmd)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
		return
	}

	// Whole-order return: open one return per delivered line.
	order, err := h.orders.GetOrder(ctx, orderID, userID, false)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	var opened int
	var updated domain.Order
	for _, line := range order.Items {
		if line.Status != domain.LineItemStatusDelivered {
			continue
		}
		lineCmd := cmd
		lineCmd.ProductID = line.ProductID
		updated, err = h.returns.RequestReturn(ctx, lineCmd)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		opened++
	}
	if opened == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "no delivered items eligible for return", http.StatusConflict))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": updated})
}

// storeImages uploads every file in the "images" form field and returns their
// locations. Pre-uploaded URLs may be passed through the "imageUrls" field.
func (h *ReturnHandlers) storeImages(ctx context.Context, orderID, productID string, form *multipart.Form) ([]string, error) {
	var images []string
	if form == nil {
		return nil, nil
	}
	for _, raw := range form.Value["imageUrls"] {
		if url := strings.TrimSpace(raw); url != "" {
			images = append(images, url)
		}
	}

	files := form.File["images"]
	if len(files) > maxReturnImageCount {
		return nil, fmt.Errorf("at most %d images are accepted", maxReturnImageCount)
	}
	if len(files) > 0 && h.uploader == nil {
		return nil, fmt.Errorf("image uploads are not configured")
	}
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", header.Filename, err)
		}
		object := returnImageObject(orderID, productID, header.Filename)
		url, err := h.uploader.Upload(ctx, object, header.Header.Get("Content-Type"), file)
		_ = file.Close()
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", header.Filename, err)
		}
		images = append(images, url)
	}
	return images, nil
}

func returnImageObject(orderID, productID, filename string) string {
	if productID == "" {
		productID = "order"
	}
	return storage.ReturnImageObject(orderID, productID, filepath.Base(filename))
}

func (h *ReturnHandlers) cancelReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")
	productID := chi.URLParam(r, "productID")

	if productID != "" {
		order, err := h.returns.CancelReturn(ctx, orderID, userID, productID)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": order})
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, userID, false)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	var withdrawn int
	var updated domain.Order
	for _, line := range order.Items {
		if line.Status != domain.LineItemStatusReturnRequested {
			continue
		}
		updated, err = h.returns.CancelReturn(ctx, orderID, userID, line.ProductID)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		withdrawn++
	}
	if withdrawn == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "no open return requests to withdraw", http.StatusConflict))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": updated})
}

func (h *ReturnHandlers) refundStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(ctx, w, r)
	if !ok {
		return
	}

	view, err := h.returns.RefundStatus(ctx, chi.URLParam(r, "orderID"), userID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}
