package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clearbill/internal/common"
	"clearbill/internal/models"
	"clearbill/internal/services"

	"github.com/jung-kurt/gofpdf"
	"github.com/labstack/echo/v4"
)

// InvoiceHandlers handles HTTP requests for invoices
type InvoiceHandlers struct {
	invoiceService services.InvoiceServiceInterface
	minioSvc       services.MinioService
}

// NewInvoiceHandlers creates a new invoice handlers instance
func NewInvoiceHandlers(invoiceService services.InvoiceServiceInterface, minioSvc services.MinioService) *InvoiceHandlers {
	return &InvoiceHandlers{
		invoiceService: invoiceService,
		minioSvc:       minioSvc,
	}
}

// sendInvoiceError maps service errors onto the HTTP error envelope.
func sendInvoiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrInvoiceNotFound):
		return common.SendNotFoundError(c, "Invoice")
	case errors.Is(err, services.ErrUnauthorized):
		return common.SendForbiddenError(c, "Caller is not a party to this invoice or lacks the required role")
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrNotApproved):
		return common.SendConflictError(c, err.Error())
	case errors.Is(err, services.ErrAmountMismatch), errors.Is(err, services.ErrTransferFailed):
		return common.SendUnprocessableError(c, err.Error())
	case errors.Is(err, services.ErrInvalidRecipient),
		errors.Is(err, services.ErrSelfAssignment),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrDueDateInPast):
		return common.SendClientError(c, err.Error())
	default:
		return common.SendServerError(c, err.Error())
	}
}

func parseInvoiceID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invoice id must be a positive integer")
	}
	return id, nil
}

func parseInvoiceStatus(raw string) (models.PartyStatus, error) {
	status := models.PartyStatus(raw)
	switch status {
	case models.StatusPending, models.StatusApproved, models.StatusPaid,
		models.StatusPaymentReceived, models.StatusOverdue, models.StatusRejected:
		return status, nil
	}
	return "", fmt.Errorf("unknown invoice status %q", raw)
}

// CreateInvoice handles POST /invoices
func (h *InvoiceHandlers) CreateInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		IssuerName string    `json:"issuer_name"`
		ClientName string    `json:"client_name"`
		Recipient  string    `json:"recipient"`
		Amount     int64     `json:"amount"`
		Message    string    `json:"message"`
		DueDate    time.Time `json:"due_date"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	recipient, err := common.ValidateUUID(req.Recipient, "recipient")
	if err != nil {
		return common.SendValidationError(c, "recipient", err.Error())
	}

	invoice, err := h.invoiceService.CreateInvoice(ctx, caller, services.CreateInvoiceInput{
		IssuerName: req.IssuerName,
		ClientName: req.ClientName,
		Recipient:  recipient,
		Amount:     req.Amount,
		Message:    req.Message,
		DueDate:    req.DueDate,
	})
	if err != nil {
		return sendInvoiceError(c, err)
	}

	return c.JSON(http.StatusCreated, invoice)
}

// ListInvoices handles GET /invoices
// Returns the caller's invoices in the order they were indexed.
func (h *InvoiceHandlers) ListInvoices(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit := 0
	offset := 0
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil {
			limit = l
		}
	}
	if offsetParam := c.QueryParam("offset"); offsetParam != "" {
		if o, err := strconv.Atoi(offsetParam); err == nil {
			offset = o
		}
	}

	limit, offset, err := common.ValidatePaginationParams(limit, offset)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var invoices []*models.Invoice
	if statusParam := c.QueryParam("status"); statusParam != "" {
		status, err := parseInvoiceStatus(statusParam)
		if err != nil {
			return common.SendValidationError(c, "status", err.Error())
		}
		invoices, err = h.invoiceService.ListInvoicesForByStatus(ctx, caller, status, limit, offset)
		if err != nil {
			return common.SendServerError(c, err.Error())
		}
	} else {
		invoices, err = h.invoiceService.ListInvoicesFor(ctx, caller, limit, offset)
		if err != nil {
			return common.SendServerError(c, err.Error())
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetInvoiceByID handles GET /invoices/:id
func (h *InvoiceHandlers) GetInvoiceByID(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := parseInvoiceID(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	invoice, err := h.invoiceService.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return common.SendServerError(c, err.Error())
	}
	if invoice == nil {
		return common.SendNotFoundError(c, "Invoice")
	}

	return c.JSON(http.StatusOK, invoice)
}

// ApproveInvoice handles POST /invoices/:id/approve
func (h *InvoiceHandlers) ApproveInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := parseInvoiceID(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	invoice, err := h.invoiceService.ApproveInvoice(ctx, caller, invoiceID)
	if err != nil {
		return sendInvoiceError(c, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

// RejectInvoice handles POST /invoices/:id/reject
func (h *InvoiceHandlers) RejectInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := parseInvoiceID(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	invoice, err := h.invoiceService.RejectInvoice(ctx, caller, invoiceID)
	if err != nil {
		return sendInvoiceError(c, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

// ModifyInvoice handles PUT /invoices/:id
func (h *InvoiceHandlers) ModifyInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := parseInvoiceID(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req struct {
		ClientName string    `json:"client_name"`
		Amount     int64     `json:"amount"`
		Message    string    `json:"message"`
		DueDate    time.Time `json:"due_date"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	invoice, err := h.invoiceService.ModifyInvoice(ctx, caller, invoiceID, services.ModifyInvoiceInput{
		ClientName: req.ClientName,
		Amount:     req.Amount,
		Message:    req.Message,
		DueDate:    req.DueDate,
	})
	if err != nil {
		return sendInvoiceError(c, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

// PayInvoice handles POST /invoices/:id/pay
func (h *InvoiceHandlers) PayInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := parseInvoiceID(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	invoice, err := h.invoiceService.PayInvoice(ctx, caller, invoiceID, req.Amount)
	if err != nil {
		return sendInvoiceError(c, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

// GetInvoiceAnalytics handles GET /invoices/analytics
func (h *InvoiceHandlers) GetInvoiceAnalytics(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	// Default to the trailing 90 days when no range is given
	endDate := time.Now()
	startDate := endDate.AddDate(0, 0, -90)

	if startParam := c.QueryParam("start_date"); startParam != "" {
		parsed, err := time.Parse(time.RFC3339, startParam)
		if err != nil {
			return common.SendValidationError(c, "start_date", "must be RFC3339 formatted")
		}
		startDate = parsed
	}
	if endParam := c.QueryParam("end_date"); endParam != "" {
		parsed, err := time.Parse(time.RFC3339, endParam)
		if err != nil {
			return common.SendValidationError(c, "end_date", "must be RFC3339 formatted")
		}
		endDate = parsed
	}

	if err := common.ValidateDateRange(startDate, endDate); err != nil {
		return common.SendClientError(c, err.Error())
	}

	analytics, err := h.invoiceService.CalculateInvoiceAnalytics(ctx, caller, startDate, endDate)
	if err != nil {
		return common.SendServerError(c, err.Error())
	}
	return c.JSON(http.StatusOK, analytics)
}

// generateInvoicePDF renders an invoice as a PDF document
func (h *InvoiceHandlers) generateInvoicePDF(invoice *models.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	marginX := 20.0
	marginY := 20.0
	pdf.SetMargins(marginX, marginY, marginX)
	pdf.SetAutoPageBreak(true, marginY)

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)

	pdf.SetXY(marginX, marginY)
	pdf.Cell(0, 10, "CLEARBILL INVOICE")
	pdf.Ln(15)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Invoice Number: %d", invoice.ID))
	pdf.Ln(8)
	pdf.Cell(0, 8, fmt.Sprintf("Issued: %s", invoice.CreatedAt.Format("02-Jan-2006")))
	pdf.Ln(8)
	pdf.Cell(0, 8, fmt.Sprintf("Due: %s", invoice.DueDate.Format("02-Jan-2006")))
	pdf.Ln(13)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, "FROM:")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, invoice.IssuerName)
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, "BILL TO:")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, invoice.ClientName)
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)

	headers := []string{"Description", "Amount"}
	colWidths := []float64{130, 40}
	for i, header := range headers {
		pdf.CellFormat(colWidths[i], 8, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.SetFillColor(255, 255, 255)

	description := invoice.Message
	if description == "" {
		description = "Services rendered"
	}
	pdf.CellFormat(colWidths[0], 8, description, "1", 0, "L", false, 0, "")
	pdf.CellFormat(colWidths[1], 8, formatMinorUnits(invoice.Amount), "1", 0, "R", false, 0, "")
	pdf.Ln(13)

	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(220, 20, 60)
	pdf.CellFormat(130, 8, "TOTAL:", "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, formatMinorUnits(invoice.Amount), "", 0, "R", false, 0, "")
	pdf.Ln(10)

	pdf.SetTextColor(33, 37, 41)
	pdf.SetFont("Arial", "B", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Status: issuer %s / recipient %s", invoice.IssuerStatus, invoice.RecipientStatus))
	pdf.Ln(10)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.Cell(0, 5, "This is a computer generated invoice")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// formatMinorUnits renders an amount held in minor units with two
// decimal places.
func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

// GenerateInvoicePDF handles POST /invoices/:id/generate-pdf
// Renders the invoice and stores the PDF in the document archive.
func (h *InvoiceHandlers) GenerateInvoicePDF(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := parseInvoiceID(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	invoice, err := h.invoiceService.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return common.SendServerError(c, err.Error())
	}
	if invoice == nil {
		return common.SendNotFoundError(c, "Invoice")
	}
	if caller != invoice.Issuer && caller != invoice.Recipient {
		return common.SendForbiddenError(c, "Caller is not a party to this invoice")
	}

	pdfBytes, err := h.generateInvoicePDF(invoice)
	if err != nil {
		return common.SendServerError(c, fmt.Sprintf("Failed to generate PDF: %v", err))
	}
	if len(pdfBytes) == 0 {
		return common.SendServerError(c, "Generated PDF is empty")
	}

	bucketName := "invoices"
	objectName := fmt.Sprintf("invoice-%d.pdf", invoice.ID)

	if err := h.minioSvc.UploadDocument(ctx, bucketName, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes))); err != nil {
		return common.SendServerError(c, "Failed to upload PDF to storage: "+err.Error())
	}

	pdfURL, err := h.minioSvc.GetPresignedURL(bucketName, objectName, 24*time.Hour)
	if err != nil {
		return common.SendServerError(c, "Failed to generate download URL: "+err.Error())
	}
	if pdfURL == "" {
		return common.SendServerError(c, "Generated download URL is empty")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":    "PDF generated and uploaded successfully",
		"pdf_url":    pdfURL,
		"expires_in": "24 hours",
	})
}
