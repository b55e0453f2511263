// Package main is a development utility for generating a random digital key
// value. It prints the raw value, a ready-to-run SQL INSERT, and a curl command
// against the create endpoint so developers can quickly seed a usable key in a
// local database without hand-rolling random material. Do not use generated
// values in production — issue keys through the API so they are snapshotted to
// the backup store.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func main() {
	// Generate random bytes
	randomBytes := make([]byte, 32)
	_, err := rand.Read(randomBytes)
	if err != nil {
		log.Fatal(err)
	}

	// Encode to base64
	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)

	// Create full key value
	prefix := "dk"
	value := fmt.Sprintf("%s_%s", prefix, randomPart)

	fmt.Println("==========================================================")
	fmt.Println("Digital Key Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nValue: %s\n", value)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO digital_keys (name, value, owner, created_at, updated_at)
VALUES ('dev-key', '%s', 'dev@local', NOW(), NOW());
`, value)
	fmt.Println("\n==========================================================")
	fmt.Println("Or via the API:")
	fmt.Println("==========================================================")
	fmt.Printf(`
curl -X POST http://localhost:8080/api/v1/digital-keys \
  -H 'Content-Type: application/json' \
  -d '{"name": "dev-key", "value": "%s", "owner": "dev@local"}'
`, value)
	fmt.Println("\n==========================================================")
}
