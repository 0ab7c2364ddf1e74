package telegram

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
)

func mainMenuKeyboard() map[string]interface{} {
	return map[string]interface{}{
		"inline_keyboard": [][]map[string]interface{}{
			{{"text": "🃏 Карта дня", "callback_data": "draw"}},
			{{"text": "✨ Подписка", "callback_data": "menu:subscribe"}},
		},
	}
}

// subscriptionKeyboard тарифы с ценами в обеих валютах, по две кнопки
// на тариф — ЮKassa (RUB) и PayPal (USD)
func subscriptionKeyboard() map[string]interface{} {
	rows := make([][]map[string]interface{}, 0, len(domain.AllPlans()))
	for _, plan := range domain.AllPlans() {
		rub, _ := domain.PlanPrice(plan, "RUB")
		usd, _ := domain.PlanPrice(plan, "USD")
		rows = append(rows, []map[string]interface{}{
			{
				"text":          fmt.Sprintf("%s — %d ₽", plan.Title(), rub/100),
				"callback_data": fmt.Sprintf("buy:%s:%s", plan, domain.ProviderYooKassa),
			},
			{
				"text":          fmt.Sprintf("$%d.%02d", usd/100, usd%100),
				"callback_data": fmt.Sprintf("buy:%s:%s", plan, domain.ProviderPayPal),
			},
		})
	}
	return map[string]interface{}{"inline_keyboard": rows}
}

func deckKeyboard() map[string]interface{} {
	rub, _ := domain.DeckPrice("RUB")
	usd, _ := domain.DeckPrice("USD")
	return map[string]interface{}{
		"inline_keyboard": [][]map[string]interface{}{
			{
				{
					"text":          fmt.Sprintf("Купить за %d ₽", rub/100),
					"callback_data": fmt.Sprintf("deck:%s", domain.ProviderYooKassa),
				},
				{
					"text":          fmt.Sprintf("$%d.%02d", usd/100, usd%100),
					"callback_data": fmt.Sprintf("deck:%s", domain.ProviderPayPal),
				},
			},
		},
	}
}

func checkoutKeyboard(checkoutURL string, paymentID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"inline_keyboard": [][]map[string]interface{}{
			{{"text": "💳 Перейти к оплате", "url": checkoutURL}},
			{{"text": "✅ Я оплатил", "callback_data": fmt.Sprintf("check:%s", paymentID)}},
		},
	}
}
