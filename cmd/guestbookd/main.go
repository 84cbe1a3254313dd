// guestbookd is a terminal front for the guestbook dashboard client:
// it watches one event, keeps the local cache synchronized with the
// backend and its push channel, and re-renders the projected view on
// every cache change.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"guestbookdash/config"
	"guestbookdash/internal/cache"
	"guestbookdash/internal/domain"
	"guestbookdash/internal/push"
	"guestbookdash/internal/services"
	"guestbookdash/internal/transport"
	"guestbookdash/internal/view"
)

func main() {
	var (
		createName = flag.String("create", "", "create a new event with this name and exit")
		eventID    = flag.String("event", "", "event id to watch")
		doExport   = flag.Bool("export", false, "download the event's guest CSV and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger()

	store := cache.NewStore(logger)
	client := transport.NewClient(cfg.APIBaseURL, nil)
	channel := push.NewChannel(cfg.WebSocketURL, logger)
	core := services.NewSyncService(client, store, channel, logger, cfg.RequestTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *createName != "" {
		event, err := core.CreateEvent(ctx, *createName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", domain.UserMessage(err))
			os.Exit(1)
		}
		fmt.Printf("created event %s (%s)\n", event.Name, event.ID)
		return
	}

	if *eventID == "" {
		fmt.Fprintln(os.Stderr, "usage: guestbookd --event <id> [--export] | --create <name>")
		os.Exit(2)
	}

	if *doExport {
		filename, data, err := core.ExportCSV(ctx, *eventID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", domain.UserMessage(err))
			os.Exit(1)
		}
		if err := os.WriteFile(filename, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", filename, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s (%d bytes)\n", filename, len(data))
		return
	}

	if err := core.WatchEvent(ctx, *eventID); err != nil {
		// Degraded mode: no live updates, refetch-on-invalidation only.
		logger.Warn("starting without push updates", "err", err)
	}
	defer core.Unwatch()

	render := func(cache.Key) { renderDashboard(store, *eventID) }
	unsubDetails := store.Subscribe(cache.DetailsKey(*eventID), render)
	defer unsubDetails()
	unsubGuests := store.Subscribe(cache.GuestsKey(*eventID), render)
	defer unsubGuests()

	// Prime both keys; the subscriptions make the invalidations fetch.
	store.Invalidate(cache.DetailsKey(*eventID))
	store.Invalidate(cache.GuestsKey(*eventID))

	core.Run(ctx)
}

func renderDashboard(store *cache.Store, eventID string) {
	dv, ok := projected(store, eventID)
	if !ok {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s | %s (%s)\n", dv.EventName, dv.StatusLabel, dv.Elapsed)
	fmt.Fprintf(&b, "total %d | male %d | female %d\n", dv.Total, dv.Male, dv.Female)
	for i, g := range dv.Guests {
		fmt.Fprintf(&b, "%3d. %-24s %s\n", i+1, g.Name, g.Gender)
	}
	fmt.Print(b.String())
}

func projected(store *cache.Store, eventID string) (view.DashboardView, bool) {
	dv, _, ok := store.Read(cache.DetailsKey(eventID))
	if !ok {
		return view.DashboardView{}, false
	}
	details, ok := dv.(domain.EventDetails)
	if !ok {
		return view.DashboardView{}, false
	}
	var guests []domain.Guest
	if gv, _, ok := store.Read(cache.GuestsKey(eventID)); ok {
		if list, ok := gv.([]domain.Guest); ok {
			guests = list
		}
	}
	if guests == nil {
		guests = details.Event.Guests
	}
	return view.Build(details, guests, time.Now()), true
}
