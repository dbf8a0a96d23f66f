package notifications

import (
	"github.com/dukerupert/bidwatch/internal/notify"
)

// notices returns the user-facing side effects of an event, in display order.
func notices(ev Event) []notify.Notice {
	switch e := ev.(type) {
	case Outbid:
		price := notify.FormatPrice(e.NewBidPrice)
		return []notify.Notice{
			{
				Level:   notify.LevelWarning,
				Title:   "You have been outbid!",
				Message: "New bid: " + price + " VND in " + e.name(),
				Native:  true,
			},
			{Level: notify.LevelWarning, Message: "You have been outbid! New bid: " + price + " VND"},
		}

	case EndingSoon:
		return []notify.Notice{
			{Level: notify.LevelInfo, Message: e.name() + " is ending soon!"},
		}

	case Won:
		price := 0.0
		if e.FinalPrice != nil {
			price = *e.FinalPrice
		}
		return []notify.Notice{
			{Level: notify.LevelSuccess, Message: "Congratulations! You won " + e.name() + "!"},
			{
				Level:   notify.LevelSuccess,
				Title:   "Auction Won!",
				Message: "You won " + e.name() + " for " + notify.FormatPrice(price) + " VND",
				Native:  true,
			},
		}

	case PaymentRequired:
		return []notify.Notice{
			{Level: notify.LevelInfo, Message: "Payment required for " + e.name()},
			{
				Level:   notify.LevelInfo,
				Title:   "Payment Required",
				Message: "Please complete payment for " + e.name(),
				Native:  true,
			},
		}
	}
	return nil
}
