// Package domain defines the core types shared across the deliverability
// service: sending accounts, outbound emails, delivery events, and DNS
// verification records. These types carry no behavior beyond small
// derivation helpers; business logic lives in the service packages.
package domain
