package receipt

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/nestbill/internal/catalog/domain"
	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Records  invoicedomain.Repository
	Subs     subscriptiondomain.Repository
	Plans    catalogdomain.Repository
	Tax      taxdomain.Calculator
	Renderer Renderer `optional:"true"`
}

// Receipt is a rendered document plus the ownership facts callers check
// before handing it out.
type Receipt struct {
	RecordID       snowflake.ID
	SubscriptionID snowflake.ID
	CustomerRef    string
	Filename       string
	Content        []byte
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	records  invoicedomain.Repository
	subs     subscriptiondomain.Repository
	plans    catalogdomain.Repository
	tax      taxdomain.Calculator
	renderer Renderer
}

func NewService(p Params) *Service {
	renderer := p.Renderer
	if renderer == nil {
		renderer = NewPDFRenderer()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("receipt.service"),
		records:  p.Records,
		subs:     p.Subs,
		plans:    p.Plans,
		tax:      p.Tax,
		renderer: renderer,
	}
}

// Render loads the billing record and renders its receipt.
func (s *Service) Render(ctx context.Context, recordID snowflake.ID) (*Receipt, error) {
	if recordID == 0 {
		return nil, invoicedomain.ErrBillingRecordNotFound
	}
	record, err := s.records.FindByID(ctx, s.db, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, invoicedomain.ErrBillingRecordNotFound
	}
	sub, err := s.subs.FindByID(ctx, s.db, record.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	planName := sub.PlanCode
	plan, err := s.plans.FindByCode(ctx, s.db, sub.PlanCode)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		planName = plan.DisplayName
	}

	data := s.buildData(*record, *sub, planName)
	content, err := s.renderer.Render(ctx, data)
	if err != nil {
		s.log.Error("render receipt",
			zap.String("billing_record_id", record.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return &Receipt{
		RecordID:       record.ID,
		SubscriptionID: sub.ID,
		CustomerRef:    sub.CustomerRef,
		Filename:       record.InvoiceNumber + ".pdf",
		Content:        content,
	}, nil
}

func (s *Service) buildData(record invoicedomain.BillingRecord, sub subscriptiondomain.Subscription, planName string) Data {
	title := "Receipt"
	description := planName
	switch record.Type {
	case invoicedomain.RecordTypeRefund:
		title = "Refund receipt"
		description = "Refund: " + planName
	case invoicedomain.RecordTypeAdjustment:
		title = "Adjustment"
	}

	loc := s.tax.Location(record.Jurisdiction)
	lines := []Line{{Description: description, Amount: FormatAmount(record.Subtotal, record.Currency)}}
	for _, component := range record.TaxComponents {
		lines = append(lines, Line{
			Description: fmt.Sprintf("%s (%s)", component.Name, component.Rate),
			Amount:      FormatAmount(component.Amount, record.Currency),
		})
	}

	ref := ""
	if record.ExternalRef != nil {
		ref = strings.TrimSpace(*record.ExternalRef)
	}

	return Data{
		Title:          title,
		InvoiceNumber:  record.InvoiceNumber,
		RecordType:     string(record.Type),
		IssuedOn:       record.CreatedAt.In(loc).Format(dateLayout),
		SubscriptionID: sub.ID.String(),
		CustomerRef:    sub.CustomerRef,
		PlanName:       planName,
		Jurisdiction:   record.Jurisdiction,
		ExternalRef:    ref,
		Lines:          lines,
		Subtotal:       FormatAmount(record.Subtotal, record.Currency),
		TaxTotal:       FormatAmount(record.TaxTotal, record.Currency),
		Total:          FormatAmount(record.Total, record.Currency),
	}
}
