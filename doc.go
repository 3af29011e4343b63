// Package gopos provides a unified virtual POS gateway that abstracts multiple
// Turkish bank payment gateways behind a single, standardized API. It handles
// payment, 3D Secure flows, capture, cancel, refund and inquiry operations,
// normalizing every bank's XML and form based protocol into one response model.
//
// # Overview
//
// Every bank virtual POS speaks its own dialect: different payloads, different
// hash schemes, different success codes, different 3D Secure handshakes. GoPOS
// standardizes all of that into one consistent interface so applications
// integrate once and switch banks with configuration.
//
// # Architecture
//
// The payment flow follows this pattern:
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Your Apps     │◄──►│     GoPOS       │◄──►│   Bank Virtual  │
//	│                 │    │   (Gateway)     │    │   POS Gateways  │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// # Supported Banks
//
// Currently supported bank gateways include:
//   - VakıfBank (PayFlex): payment, 3D secure, capture, cancel and refund
//   - EST (Asseco): the gateway behind Akbank, İşbank, Ziraat and others
//   - Garanti (GVP): payment, 3D secure, capture, cancel, refund and inquiry
//   - YapıKredi (Posnet): payment, 3D secure with OOS handshake, reversals
//
// # Quick Start
//
// Basic usage example:
//
//	package main
//
//	import (
//	    "context"
//	    "github.com/mstgnz/gopos/pos"
//	    _ "github.com/mstgnz/gopos/pos/garanti" // Import to register gateway
//	)
//
//	func main() {
//	    // Create payment service
//	    service := pos.NewPaymentService(nil)
//
//	    // Gateway configuration
//	    config := map[string]string{
//	        "clientId":    "your-merchant-id",
//	        "terminalId":  "your-terminal-id",
//	        "username":    "PROVAUT",
//	        "password":    "your-password",
//	        "storeKey":    "your-store-key",
//	        "environment": "test", // or "production"
//	    }
//
//	    order := pos.Order{
//	        ID:       "order-2024-0001",
//	        Amount:   100.50,
//	        Currency: "TRY",
//	        IP:       "192.168.1.1",
//	    }
//
//	    card := pos.Card{
//	        Number:      "4543600299837417",
//	        ExpireYear:  "2030",
//	        ExpireMonth: "12",
//	        CVV:         "123",
//	        HolderName:  "John Doe",
//	    }
//
//	    // Process payment
//	    ctx := context.Background()
//	    result, err := service.Pay(ctx, "garanti", config, order, &card)
//	    if err != nil {
//	        panic(err)
//	    }
//
//	    if result.Form != nil {
//	        // 3D account: render result.Form and redirect the cardholder
//	    } else if result.Response.Success {
//	        // Approved: result.Response.AuthCode, result.Response.HostRefNum
//	    }
//	}
//
// # Multi-Merchant Support
//
// GoPOS supports serving multiple merchants, each with its own bank
// credentials:
//
//	// Setup merchant-specific configuration
//	err := accountConfig.SetAccountConfig("MERCHANT1", "garanti", map[string]string{
//	    "clientId":   "merchant1-client-id",
//	    "terminalId": "merchant1-terminal-id",
//	})
//
//	// Use with merchant header
//	// X-Merchant-ID: MERCHANT1
//	// The system automatically routes to merchant-specific configuration
//
// # Environment Support
//
// Each gateway supports both test and production environments:
//
//	config := map[string]string{
//	    "clientId":    "your-merchant-id",
//	    "environment": "production", // or "test"
//	}
//
// # HTTP API
//
// GoPOS also provides a REST API for integration:
//
//	# Create payment
//	POST /v1/payments/{bank}
//	Headers:
//	  X-Merchant-ID: your-merchant-id
//	  Content-Type: application/json
//
//	# Capture a pre-authorization
//	POST /v1/payments/{bank}/capture
//
//	# Cancel (same-day void)
//	POST /v1/payments/{bank}/cancel
//
//	# Process refund
//	POST /v1/payments/{bank}/refund
//
//	# Check payment status
//	GET /v1/payments/{bank}/status/{orderID}
//
// # 3D Secure Callbacks
//
// Bank ACS pages post the cardholder back to GoPOS, which verifies the
// callback and finishes the payment:
//
//   - Callback URLs: /v1/callback/{bank}?orderId={orderId}
//
// Pass successUrl and failUrl on the callback URL to have GoPOS redirect the
// cardholder back to your application with the outcome.
//
// # Logging and Analytics
//
// GoPOS integrates with OpenSearch for transaction logging and analytics:
//
//   - Per-bank transaction indices
//   - Card data sanitized before indexing
//   - Error and statistics queries over the log stream
//
// # Configuration
//
// Configuration can be done via environment variables or programmatically:
//
//	# Environment variables
//	GARANTI_CLIENTID=your-merchant-id
//	GARANTI_TERMINALID=your-terminal-id
//	GARANTI_STOREKEY=your-store-key
//	GARANTI_ENVIRONMENT=test
//
//	# Or programmatically
//	config := map[string]string{
//	    "clientId":   "your-merchant-id",
//	    "terminalId": "your-terminal-id",
//	}
//
// # Security Features
//
// GoPOS includes several security features:
//
//   - Rate limiting
//   - IP whitelisting
//   - Request validation
//   - PAN and credential masking in logs
//   - Per-bank hash verification on 3D callbacks
//
// # Development and Testing
//
// All gateways support the banks' test environments. Test credentials and
// card numbers are available from each bank's integration documentation.
//
// # Contributing
//
// To add a new bank gateway:
//
//  1. Implement the pos.Gateway interface
//  2. Add the gateway package under pos/{bank}/
//  3. Register the gateway in pos/{bank}/register.go
//  4. Add comprehensive tests and documentation
//  5. Submit a pull request
//
// For more information, visit: https://github.com/mstgnz/gopos
package gopos
