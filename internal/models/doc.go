// package models defines the data model for the listening stats service
package models
