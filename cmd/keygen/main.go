package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		fmt.Printf("failed to generate key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("--- copy below into .env.local ---")
	fmt.Printf("SIGNING_KEY=\"%s\"\n", base64.StdEncoding.EncodeToString(key))
	fmt.Println("-----------------------------------")
}
