// Package receipt renders PDF receipts for billing records.
package receipt

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
)

// Data is the printable view of one billing record. Amounts are formatted.
type Data struct {
	Title          string
	InvoiceNumber  string
	RecordType     string
	IssuedOn       string
	SubscriptionID string
	CustomerRef    string
	PlanName       string
	Jurisdiction   string
	ExternalRef    string

	Lines    []Line
	Subtotal string
	TaxTotal string
	Total    string
}

type Line struct {
	Description string
	Amount      string
}

// Renderer turns receipt data into a document.
type Renderer interface {
	Render(ctx context.Context, data Data) ([]byte, error)
}

type PDFRenderer struct{}

func NewPDFRenderer() Renderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(ctx context.Context, data Data) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, data.Title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.InvoiceNumber, props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Issued: "+data.IssuedOn, props.Text{Top: 0}),
			text.New("Subscription: "+data.SubscriptionID, props.Text{Top: 5}),
			text.New("Customer: "+data.CustomerRef, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Plan: "+data.PlanName, props.Text{Top: 0, Align: align.Right}),
			text.New("Jurisdiction: "+data.Jurisdiction, props.Text{Top: 5, Align: align.Right}),
			text.New("Reference: "+data.ExternalRef, props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(9, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, line := range data.Lines {
		m.AddRow(8,
			text.NewCol(9, line.Description, props.Text{Size: 9}),
			text.NewCol(3, line.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Subtotal", props.Text{Size: 9}),
		text.NewCol(3, data.Subtotal, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Tax", props.Text{Size: 9}),
		text.NewCol(3, data.TaxTotal, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Size: 10, Style: fontstyle.Bold}),
		text.NewCol(3, data.Total, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate receipt: %w", err)
	}
	return doc.GetBytes(), nil
}

// FormatAmount prints minor units as "CAD 10.49".
func FormatAmount(amount int64, currency string) string {
	return currency + " " + decimal.New(amount, -2).StringFixed(2)
}
