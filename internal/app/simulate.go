package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fuel-price-tracker/internal/alerting"
	"fuel-price-tracker/internal/analytics"
	"fuel-price-tracker/internal/storage"
)

// SimulateAlert 模拟一次燃油价格变动并通过已配置的通道告警。
func (a *App) SimulateAlert(ctx context.Context, fuelType string, previous, current decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	before := []storage.Observation{{FuelType: fuelType, Price: previous, Timestamp: at.Add(-a.Config.Scheduler.Interval)}}
	after := []storage.Observation{{FuelType: fuelType, Price: current, Timestamp: at}}

	changes := analytics.DiffSnapshots(before, after)
	if len(changes) == 0 {
		return errors.New("simulated prices are equal; nothing to alert")
	}

	return notifier.Notify(ctx, alerting.Notification{
		At:            at,
		Changes:       changes,
		AdditionalMsg: "simulated alert",
	})
}
