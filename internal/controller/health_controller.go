package controller

import "github.com/gofiber/fiber/v2"

const apiVersion = "1.0.0"

// Health answers load balancer and monitoring probes.
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

// Root exposes basic service info.
func Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    "Predictium API",
		"version": apiVersion,
		"status":  "operational",
	})
}
