package main

//go:generate swag init -d ../.. -g cmd/mirror/main.go -o ../../docs

// @title           Polymarket Wallet Mirror API
// @version         0.1.0
// @description     Read access to mirrored trades, positions and live order books.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
