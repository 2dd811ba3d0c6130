package sqlinline

const QSelectCampaignByID = `--sql 0f9711c9-29b2-4835-9671-f334c5702055
select
  c.id::text,
  c.customer_id::text,
  c.business_name,
  coalesce(c.city, ''),
  coalesce(c.phone, ''),
  coalesce(c.logo_url, ''),
  coalesce(c.primary_color, ''),
  coalesce(c.custom_text, '')
from campaigns c
where c.id::text = $1::text
limit 1;
`
