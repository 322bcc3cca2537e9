// Package commands implements the paycoordctl subcommands. Each one maps to a
// single paycoord HTTP endpoint and prints the response data as JSON.
//
//	paycoordctl setup
//	paycoordctl start coffee_mug --finish
//	paycoordctl events --event payment_completed --limit 5
package commands
