// Package delivery sends matched listings to recipients. The gateway is
// the pipeline's only consumer-facing side effect.
package delivery

import (
	"context"
	"fmt"
	"log"

	"github.com/Pererenchina/home-monitor-bot/models"
)

// Gateway delivers one formatted listing to one recipient.
type Gateway interface {
	Send(ctx context.Context, recipientID int64, listing models.Listing) error
}

// LogGateway is the stand-in used when no bot token is configured: it logs
// what would have been sent. Useful for dry runs and tests.
type LogGateway struct{}

func NewLogGateway() *LogGateway {
	return &LogGateway{}
}

func (g *LogGateway) Send(_ context.Context, recipientID int64, listing models.Listing) error {
	log.Printf("delivery (dry-run) to %d: %s %s", recipientID, listing.Source, listing.URL)
	return nil
}

// FormatListing renders the HTML message body for a listing.
func FormatListing(l models.Listing) string {
	text := fmt.Sprintf("<b>Адрес:</b> %s\n", l.Address)

	if l.Rooms != nil {
		text += fmt.Sprintf("<b>Комнаты:</b> %d-комнатная квартира\n", *l.Rooms)
	} else {
		text += "<b>Комнаты:</b> Не указано\n"
	}

	if l.PriceBYN != nil {
		text += fmt.Sprintf("<b>Цена:</b> %d BYN\n", int(*l.PriceBYN))
	}
	if l.PriceUSD != nil {
		text += fmt.Sprintf("<b>Цена:</b> %d $\n", int(*l.PriceUSD))
	}

	landlord := string(l.Landlord)
	if landlord == "" {
		landlord = "Не указано"
	}
	text += fmt.Sprintf("<b>Арендодатель:</b> %s\n", landlord)
	text += fmt.Sprintf("<b>Источник:</b> %s\n", l.Source)
	text += fmt.Sprintf("<b>Ссылка на объявление:</b> <a href='%s'>Ссылка</a>", l.URL)

	return text
}
