package main

//go:generate swag init -g cmd/engine/main.go -o docs

// @title           Now Playing Engine API
// @version         0.1.0
// @description     Station connection polling, payload normalization, and raw event access.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
