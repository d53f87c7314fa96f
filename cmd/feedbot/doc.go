// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Feedbot fetches news feeds and forwards fresh articles to a Telegram chat.

Every few minutes it fetches all subscribed feeds, drops articles older than
24 hours, skips articles it has already delivered and articles rejected by the
filter policy, optionally asks Gemini for a short analysis and sends each
article to the chat, routed to a forum topic by its category. Delivered
articles are archived in a database and in daily CSV exports.

Users of the chat can interact with the bot by commands:

  - /help (/start, /yardim): show the list of commands.
  - /latest N (/son): show the latest archived articles.
  - /search WORDS (/ara): search the archive.
  - /add URL (/subscribe, /ekle): subscribe to a feed.
  - /topicid (/konu): show the ID of the current forum topic.
  - /lang CODE (/dil): show or change the language of replies.

# Usage

	$ feedbot [flags...] <command> [args...]

Commands:

  - serve: run the scheduler, the bot and the admin API until interrupted.
  - run: fetch and deliver once.
  - feeds: list subscribed feeds.
  - subscribe URL: subscribe to a feed.
  - unsubscribe URL: unsubscribe from a feed.
  - latest [N]: list the latest archived articles.
  - search WORDS: search the archive.
  - import FILE: subscribe to all feeds of an OPML file ("-" for stdin).
  - export FILE: write subscribed feeds as OPML ("-" for stdout).

# Environment Variables

  - TELEGRAM_TOKEN: Telegram bot token. Required by serve and run, unless
    -dry is set.
  - CHAT_ID: Telegram chat ID where articles are sent. Required by serve and
    run, unless -dry is set.
  - GEMINI_API_KEY: Gemini API key. If not set, articles are sent without
    analysis.
  - GEMINI_MODEL: Gemini model name. Defaults to "gemini-1.5-flash".
  - DATABASE_URL: PostgreSQL connection URL. If not set, a SQLite database
    in the state directory is used.
  - STATE_DIRECTORY: directory for configuration, database and exports.
    Defaults to $XDG_STATE_HOME/feedbot.
  - ADMIN_ADDR: address of the admin API. Defaults to "localhost:3000".
  - EXPORT_RETENTION_DAYS: how many days CSV exports are kept. Defaults to 7.
  - DEFAULT_LANGUAGE: language of messages, "en" or "tr". Defaults to "en".

# Configuration

All configuration files live in the state directory and are reloaded before
every run:

  - feeds.json: JSON array of feed URLs. Created with a default list on
    first start.
  - filters.yaml: "denylist" and "allowlist" keyword lists.
  - topics.yaml: mapping of category names to forum topic IDs.
  - categories.star: Starlark classification rules.

For example, this categories.star puts security news into its own category:

	rules = [
	    rule(category = "security", keywords = ["cve", "exploit"]),
	]

# Admin API

The admin API listens on ADMIN_ADDR and serves:

  - GET /health: health check.
  - GET, POST, DELETE /api/feeds: list, add and remove feeds.
  - GET /api/latest?n=N and GET /api/search?q=WORDS: query the archive.
  - POST /api/run: start a run now.
  - GET /api/stats: statistics of the last run.
  - GET /debug/logs: stream of recent log lines.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/feedbot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
