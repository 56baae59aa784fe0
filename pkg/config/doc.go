// Package config loads pocketmock settings.
//
// Settings come from, in increasing precedence: built-in defaults, a config
// file (pocketmock.yaml, .yml or .json in the working directory, or the path
// given with --config), POCKETMOCK_* environment variables, and command-line
// flags bound with Load.
//
// Example file:
//
//	listen: 127.0.0.1:4300
//	rulesFile: pocket-mock.json
//	watch: true
//	log:
//	  level: debug
//	  file: pocketmock.log
//	requestLog:
//	  maxEntries: 500
//	  database: requests.db
//	bypass:
//	  - /static/**
//	aliases:
//	  user:
//	    id: "@guid"
//	    name: "@name"
//
// Nested keys map to environment variables with underscores, for example
// POCKETMOCK_LOG_LEVEL or POCKETMOCK_REQUESTLOG_MAXENTRIES.
package config
