package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/careerbooks/careerbooks/internal/model"
)

// MaxContentLength is Discord's limit for the content field.
const MaxContentLength = 2000

var kst = time.FixedZone("KST", 9*60*60)

// Message is the Discord webhook body.
type Message struct {
	Content string `json:"content"`
}

// PurchaseRequestMessage renders the operator notification for a purchase request.
// bookTitle may be empty when the slug is unknown to the catalog.
func PurchaseRequestMessage(req *model.PurchaseRequest, bookTitle string) Message {
	memo := req.Memo
	if memo == "" {
		memo = "없음"
	}
	book := req.BookSlug
	if bookTitle != "" {
		book = fmt.Sprintf("%s (%s)", bookTitle, req.BookSlug)
	}

	var b strings.Builder
	b.WriteString("📥 **입금 확인 요망**\n\n")
	fmt.Fprintf(&b, "👤 입금자명: %s\n", req.Depositor)
	fmt.Fprintf(&b, "📧 이메일: %s\n", req.Email)
	fmt.Fprintf(&b, "📚 전자책: %s\n", book)
	fmt.Fprintf(&b, "📝 메모: %s\n", memo)
	fmt.Fprintf(&b, "🕒 %s\n", req.CreatedAt.In(kst).Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "🔖 요청 ID: %s", req.ID)

	content := b.String()
	if len([]rune(content)) > MaxContentLength {
		content = string([]rune(content)[:MaxContentLength])
	}
	return Message{Content: content}
}

// Encode marshals the message into the JSON payload stored in the outbox.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
