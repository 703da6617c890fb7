// Command rosterd is the non-interactive collaborator that brings up one
// XMPP session end to end: it loads configuration, opens the persisted
// caps cache and unread-jids index, connects, wires the typed IQ
// responders/requests, and runs until interrupted. It replaces the
// teacher's bubbletea TUI (cmd/roster), which this core has no use for.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rosterd/corexmpp/internal/caps"
	"github.com/rosterd/corexmpp/internal/config"
	"github.com/rosterd/corexmpp/internal/hooks"
	"github.com/rosterd/corexmpp/internal/iqhandlers"
	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/logging"
	"github.com/rosterd/corexmpp/internal/session"
	"github.com/rosterd/corexmpp/internal/storage/sqlite"
)

func main() {
	accountFlag := flag.String("account", "", "JID of the account to connect (defaults to the first configured account)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rosterd: load config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "rosterd: init logging: %v\n", err)
		os.Exit(1)
	}

	accounts, err := config.LoadAccounts()
	if err != nil {
		logging.Error("load accounts: %v", err)
		os.Exit(1)
	}
	acct, err := pickAccount(accounts, *accountFlag)
	if err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.General.DataDir)
	if err != nil {
		logging.Error("open storage: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	accountJID, err := jid.Parse(acct.JID)
	if err != nil {
		logging.Error("parse account jid %q: %v", acct.JID, err)
		os.Exit(1)
	}

	sess := session.New(accountConfig(acct, accountJID))

	if err := restoreCapsCache(sess, store); err != nil {
		logging.Warn("restore caps cache: %v", err)
	}
	if unread, err := store.LoadUnreadJIDs(acct.JID); err != nil {
		logging.Warn("load unread-jids index: %v", err)
	} else {
		sess.Roster.RestoreUnreadJIDs(unread)
	}

	sess.RegisterMessageHandler()
	sess.RegisterPresenceHandler()
	iqhandlers.RegisterRosterPush(sess)
	iqhandlers.RegisterResponders(sess, iqhandlers.ResponderConfig{
		Identity: iqhandlers.ClientIdentity{
			Name:    "rosterd",
			Version: "0.1.0",
			OS:      "unknown",
		},
		Caps: caps.Info{
			Identities: []caps.Identity{{Category: "client", Type: "pc", Name: "rosterd"}},
			Features:   []string{"http://jabber.org/protocol/disco#info"},
		},
		IQLastDisable:             acct.IQLastDisable,
		IQLastDisableWhenNotAvail: acct.IQLastDisableWhenNotAvail,
		LocallyAvailable:          func() bool { return sess.State() == session.Live },
	})

	sess.Hooks.Register(hooks.PostConnect, func(hooks.Args) hooks.Disposition {
		onConnect(sess, store, acct)
		return hooks.AllowMore
	})
	sess.Hooks.Register(hooks.PreDisconnect, func(hooks.Args) hooks.Disposition {
		persistState(sess, store, acct)
		return hooks.AllowMore
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Connect(ctx); err != nil {
		logging.Error("connect: %v", err)
		os.Exit(1)
	}

	<-ctx.Done()
	persistState(sess, store, acct)
	_ = sess.Close()
}

func pickAccount(accounts *config.AccountsConfig, want string) (config.Account, error) {
	if len(accounts.Accounts) == 0 {
		return config.Account{}, fmt.Errorf("no accounts configured")
	}
	if want == "" {
		return accounts.Accounts[0], nil
	}
	for _, a := range accounts.Accounts {
		if a.JID == want {
			return a, nil
		}
	}
	return config.Account{}, fmt.Errorf("no account configured with jid %q", want)
}

func accountConfig(acct config.Account, accountJID jid.JID) session.Config {
	certPolicy := session.CertStrict
	if acct.SSLIgnoreChecks {
		certPolicy = session.CertIgnoreAll
	}
	return session.Config{
		JID:                    accountJID,
		Password:               acct.Password,
		Resource:               acct.Resource,
		Server:                 acct.Server,
		Port:                   acct.Port,
		DirectTLS:              acct.SSL,
		StartTLS:               acct.TLS,
		CertPolicy:             certPolicy,
		SSLFingerprint:         acct.SSLFingerprint,
		SSLCA:                  acct.SSLCA,
		PingInterval:           time.Duration(acct.PingInterval) * time.Second,
		Priority:               int8(acct.Priority),
		PriorityAway:           int8(acct.PriorityAway),
		DisableChatStates:      acct.DisableChatStates,
		DisableRandomResource:  acct.DisableRandomResource,
		BlockUnsubscribed:      acct.BlockUnsubscribed,
		DeleteOnReject:         acct.DeleteOnReject,
		IgnoreSelfPresence:     acct.IgnoreSelfPresence,
		EnableCarbonsOnConnect: acct.Carbons,
		ClientNode:             "https://rosterd.example/",
		DialTimeout:            30 * time.Second,
	}
}

// onConnect issues the "on entry to Live" requests spec.md §4.3 names that
// internal/session deliberately leaves to its caller: roster fetch and
// legacy private-storage bookmarks/rosternotes. No disco#info query is sent.
func onConnect(sess *session.Session, store *sqlite.DB, acct config.Account) {
	if err := iqhandlers.RequestRoster(sess, func(err error) {
		if err != nil {
			logging.Warn("roster fetch: %v", err)
		}
	}); err != nil {
		logging.Warn("request roster: %v", err)
	}

	if err := iqhandlers.RequestBookmarks(sess, func(bookmarks []iqhandlers.Bookmark, err error) {
		if err != nil {
			logging.Warn("fetch bookmarks: %v", err)
			return
		}
		logging.Debug("loaded %d bookmark(s)", len(bookmarks))
	}); err != nil {
		logging.Warn("request bookmarks: %v", err)
	}

	if err := iqhandlers.RequestRosterNotes(sess, func(notes []iqhandlers.RosterNote, err error) {
		if err != nil {
			logging.Warn("fetch rosternotes: %v", err)
			return
		}
		logging.Debug("loaded %d rosternote(s)", len(notes))
	}); err != nil {
		logging.Warn("request rosternotes: %v", err)
	}
}

func restoreCapsCache(sess *session.Session, store *sqlite.DB) error {
	entries, err := store.LoadCapsEntries()
	if err != nil {
		return err
	}
	for _, p := range entries {
		if err := sess.Caps.RestoreFromPersistent(p, sqlite.DecodeInfo); err != nil {
			logging.Warn("restore caps entry %s/%s: %v", p.Hash, p.Ver, err)
		}
	}
	return nil
}

func persistState(sess *session.Session, store *sqlite.DB, acct config.Account) {
	if err := store.SaveUnreadJIDs(acct.JID, sess.Roster.UnreadJIDs()); err != nil {
		logging.Warn("persist unread-jids index: %v", err)
	}
	for _, key := range sess.Caps.Keys() {
		entry, ok, err := sess.Caps.CopyToPersistent(key.Hash, key.Ver, sqlite.EncodeInfo)
		if err != nil || !ok {
			continue
		}
		if err := store.SaveCapsEntry(entry); err != nil {
			logging.Warn("persist caps entry %s/%s: %v", key.Hash, key.Ver, err)
		}
	}
}
