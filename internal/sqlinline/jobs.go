package sqlinline

const QInsertPipelineJob = `--sql c1e3ee61-9c71-404e-b33d-55165d25c480
insert into pipeline_jobs(
  id,
  campaign_id,
  customer_id,
  priority,
  status,
  stage,
  progress,
  planned_assets,
  business_intelligence,
  assets,
  failures,
  quality_report,
  archive_key,
  error_message,
  version,
  created_at,
  updated_at,
  completed_at
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::text,
  $7::int,
  $8::int,
  coalesce($9::jsonb, '{}'::jsonb),
  coalesce($10::jsonb, '[]'::jsonb),
  coalesce($11::jsonb, '[]'::jsonb),
  $12::jsonb,
  nullif($13::text, ''),
  nullif($14::text, ''),
  $15::int,
  $16::timestamptz,
  $17::timestamptz,
  $18::timestamptz
);
`

const pipelineJobColumns = `
  id::text,
  campaign_id,
  customer_id,
  priority,
  status,
  stage,
  progress,
  planned_assets,
  business_intelligence,
  assets,
  failures,
  quality_report,
  coalesce(archive_key, ''),
  coalesce(error_message, ''),
  version,
  created_at,
  updated_at,
  completed_at
`

const QSelectPipelineJobByID = `--sql 24a65620-e2b7-47b8-bf98-efe658587615
select` + pipelineJobColumns + `from pipeline_jobs
where id = $1::uuid
limit 1;
`

const QSelectLatestPipelineJobByCampaign = `--sql fa5a81dc-d32a-4e09-8a93-bd46b44ae51a
select` + pipelineJobColumns + `from pipeline_jobs
where campaign_id = $1::text
order by created_at desc, id desc
limit 1;
`

// QUpdatePipelineJob only matches the expected version and returns the new one.
const QUpdatePipelineJob = `--sql 7b7acd2d-78f7-47e0-a988-f3785d6eec66
update pipeline_jobs
set status = $3::text,
    stage = $4::text,
    progress = $5::int,
    planned_assets = $6::int,
    assets = coalesce($7::jsonb, '[]'::jsonb),
    failures = coalesce($8::jsonb, '[]'::jsonb),
    quality_report = $9::jsonb,
    archive_key = nullif($10::text, ''),
    error_message = nullif($11::text, ''),
    updated_at = $12::timestamptz,
    completed_at = $13::timestamptz,
    version = version + 1
where id = $1::uuid
  and version = $2::int
returning version;
`

const QPipelineJobExists = `--sql 96368cdf-1fd7-43e0-8127-c3ca8e42e9a3
select exists(select 1 from pipeline_jobs where id = $1::uuid);
`
