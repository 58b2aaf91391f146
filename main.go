package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/braintree/manners"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	flags "github.com/jessevdk/go-flags"
	"github.com/rorycl/ShaamInvoicePanel/flow"
	"github.com/rorycl/ShaamInvoicePanel/invoice"
	"github.com/rorycl/ShaamInvoicePanel/store"
)

const description = "Tax authority invoice approval control panel"
const version = "0.1.0 October 2026"
const usage = " <options>" + "\n\n  " + description

// Opts are the command line options
type Opts struct {
	Port        string        `short:"p" long:"port" description:"port to run on" default:"3001" validate:"required,numeric"`
	Addr        string        `short:"n" long:"address" description:"network address to run on" default:"127.0.0.1" validate:"required,ip"`
	Redirect    string        `short:"r" long:"redirect" description:"oauth2 redirect address registered with the tax authority" default:"http://localhost:3001/" validate:"required,url"`
	Endpoint    string        `short:"e" long:"endpoint" description:"tax authority api" choice:"sandbox" choice:"production" default:"sandbox" validate:"oneof=sandbox production"`
	Credentials string        `short:"c" long:"credentials" description:"yaml credential file" default:"credentials.yaml" validate:"required"`
	EnvFile     string        `long:"envfile" description:"env file with SHAAM_CLIENT_ID and SHAAM_CLIENT_SECRET defaults" default:".env"`
	Invoice     string        `short:"i" long:"invoice" description:"yaml invoice file (default: built-in sample invoice)" validate:"omitempty,file"`
	Timeout     time.Duration `short:"t" long:"timeout" description:"api request timeout, 0 for none" default:"0s" validate:"gte=0s"`
}

func main() {

	var options Opts
	var parser = flags.NewParser(&options, flags.Default)
	parser.Usage = fmt.Sprintf("%s : %s", usage, version)

	if _, err := parser.Parse(); err != nil {
		flagError := err.(*flags.Error)
		if flagError.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
		}
		os.Exit(1)
	}

	if err := validator.New().Struct(options); err != nil {
		log.Printf("invalid options: %s", err)
		os.Exit(1)
	}

	if err := store.LoadEnv(options.EnvFile); err != nil {
		log.Printf("env file error %s", err)
		os.Exit(1)
	}
	credentialStore := store.File{Path: options.Credentials}
	creds, err := credentialStore.Seed()
	if err != nil {
		log.Printf("credential seeding error %s", err)
		os.Exit(1)
	}

	endpoint, err := flow.ParseEndpoint(options.Endpoint)
	if err != nil {
		log.Printf("%s", err)
		os.Exit(1)
	}

	f, err := flow.New(flow.Config{
		Credentials: creds,
		Endpoint:    endpoint,
		RedirectURL: options.Redirect,
		Client:      &http.Client{Timeout: options.Timeout},
		Invoice:     invoice.Builder{Path: options.Invoice},
		Store:       credentialStore,
	})
	if err != nil {
		log.Printf("new flow error %s\n", err)
		os.Exit(1)
	}

	// endpoint routing; gorilla mux is used because "/" in http.NewServeMux
	// is a catch-all pattern
	r := mux.NewRouter()
	r.HandleFunc("/", f.HandleHome).Methods(http.MethodGet)
	r.HandleFunc("/configure", f.HandleConfigure).Methods(http.MethodPost)
	r.HandleFunc("/authorize", f.HandleAuthorize).Methods(http.MethodPost)
	r.HandleFunc("/token", f.HandleToken).Methods(http.MethodPost)
	r.HandleFunc("/invoice", f.HandleInvoice).Methods(http.MethodPost)
	r.HandleFunc("/credentials", f.HandleSaveCredentials).Methods(http.MethodPost)
	r.HandleFunc("/state", f.HandleState).Methods(http.MethodGet)
	r.HandleFunc("/livez", f.HandleLivez)

	// create a handler wrapped in a recovery handler and logging handler
	hdl := handlers.RecoveryHandler()(
		handlers.LoggingHandler(os.Stdout, r))

	// no write timeout: the token and invoice calls are not bounded
	server := manners.NewWithServer(&http.Server{
		Addr:        options.Addr + ":" + options.Port,
		ReadTimeout: 5 * time.Second,
		Handler:     hdl,
	})

	// catch signals
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go listenForShutdown(ch, server)

	log.Printf("serving on http://%s:%s (%s)", options.Addr, options.Port, endpoint.Name())
	if err := server.ListenAndServe(); err != nil {
		log.Printf("server error %s", err)
		os.Exit(1)
	}
}

func listenForShutdown(ch <-chan os.Signal, server *manners.GracefulServer) {
	<-ch
	log.Print("Closing the server")
	server.Close()
}
