package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"wayfare/internal/config"
	"wayfare/internal/dbmongo"
	"wayfare/internal/media"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.LoadConfig()

	mongoClient, err := dbmongo.NewMongoConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Close(context.Background())

	mediaServer := media.NewHTTPServer(mongoClient)

	log.Printf("Media server starting on port %s", cfg.Server.MediaServerPort)
	if err := http.ListenAndServe(":"+cfg.Server.MediaServerPort, mediaServer); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
