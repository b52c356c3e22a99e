// Package client is the powchain Go SDK.
//
// It wraps the node's HTTP API: reading blocks, checking chain validity,
// queueing transactions and triggering mining.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(token),
//	    client.WithBlockCache(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Submitting and mining
//
//	height, err := c.SubmitTransaction(ctx, client.Transaction{
//	    Sender: "Alice", Recipient: "Bob", Amount: 50,
//	})
//	block, err := c.Mine(ctx, "Miner1")
//
// Write calls need an operator token with the chain:submit or chain:mine
// scope when the node runs with an operator secret.
//
// # Reading the chain
//
// Blocks never change once mined, so WithBlockCache keeps every block
// fetched by height for the life of the client:
//
//	b, err := c.Block(ctx, 1)
//	res, err := c.Validate(ctx)
//	if !res.Valid {
//	    fmt.Println("chain broken at height", res.Height)
//	}
//
// Non-2xx responses are returned as *APIError; a 404 also matches ErrNotFound.
package client
